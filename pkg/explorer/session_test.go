package explorer

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/filter"
	"github.com/specvital/explorer/pkg/repository"
	"github.com/specvital/explorer/pkg/search"
	"github.com/specvital/explorer/pkg/tree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newReport(items ...domain.TestItem) *domain.DiscoveryResult {
	return &domain.DiscoveryResult{
		PytestVersion: "8.0.0",
		PluginVersion: "0.1.0",
		Errors:        []domain.ErrorMessage{{When: domain.WhenCollect}},
		Warnings:      []domain.WarningMessage{},
		Items:         items,
	}
}

func testItem(file, name string, markers ...string) domain.TestItem {
	return domain.TestItem{
		NodeID:  file + "::" + name,
		File:    file,
		Module:  "test",
		Name:    name,
		Markers: markers,
	}
}

var (
	loginItem  = testItem("auth/test_login.py", "test_login", "slow")
	logoutItem = testItem("auth/test_logout.py", "test_logout", "fast")
	cartItem   = testItem("shop/test_cart.py", "test_cart", "slow", "db")
)

func waitReady(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.IndexReady():
	case <-time.After(5 * time.Second):
		t.Fatal("search index was not populated in time")
	}
}

func matchIDs(docs []search.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func newSession(t *testing.T, repo repository.Repository, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(repo, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewSession(t *testing.T) {
	t.Run("should start empty", func(t *testing.T) {
		s := newSession(t, repository.NewMemory())

		assert.Nil(t, s.Report())
		assert.Nil(t, s.Statistics())
		assert.Empty(t, s.Results())
		assert.Empty(t, s.Markers().Values())
	})

	t.Run("should load the stored report", func(t *testing.T) {
		repo := repository.NewMemory()
		require.NoError(t, repo.Save(newReport(loginItem, cartItem)))

		s := newSession(t, repo)
		waitReady(t, s)

		require.NotNil(t, s.Report())
		assert.Len(t, s.Matches(), 2)
		assert.Equal(t, []string{"slow", "db"}, s.Markers().Values())
	})
}

func TestSession_SetReport(t *testing.T) {
	repo := repository.NewMemory()
	s := newSession(t, repo)

	report := newReport(loginItem, logoutItem, cartItem)
	require.NoError(t, s.SetReport(report))
	waitReady(t, s)

	stored, err := repo.Load()
	require.NoError(t, err)
	assert.Same(t, report, stored)

	assert.Equal(t, []string{loginItem.NodeID, logoutItem.NodeID, cartItem.NodeID}, matchIDs(s.Matches()))
	require.NotNil(t, s.Statistics())
	assert.Equal(t, 3, s.Statistics().TotalCount)
	assert.Equal(t, 1, s.Statistics().TotalErrors)
	assert.Equal(t, 3, s.Statistics().TotalMarkersCount)

	t.Run("should not re-index an identical report", func(t *testing.T) {
		before := s.IndexReady()
		fingerprint := s.Fingerprint()

		require.NoError(t, s.SetReport(newReport(loginItem, logoutItem, cartItem)))

		assert.True(t, before == s.IndexReady())
		assert.Equal(t, fingerprint, s.Fingerprint())
	})

	t.Run("should reset the marker filter when the report changes", func(t *testing.T) {
		s.ToggleMarker("fast")
		require.NoError(t, s.SetReport(newReport(loginItem, logoutItem)))
		waitReady(t, s)

		assert.Equal(t, filter.StatusNeither, s.MarkerStatus("fast"))
		assert.Equal(t, []string{loginItem.NodeID, logoutItem.NodeID}, matchIDs(s.Matches()))
	})

	t.Run("should keep the marker filter for an identical report", func(t *testing.T) {
		s.ToggleMarker("fast")
		require.NoError(t, s.SetReport(newReport(loginItem, logoutItem)))

		assert.Equal(t, filter.StatusIncluded, s.MarkerStatus("fast"))
		assert.Equal(t, []string{logoutItem.NodeID}, matchIDs(s.Matches()))
		s.ToggleMarker("fast")
		s.ToggleMarker("fast")
	})

	t.Run("should clear on nil", func(t *testing.T) {
		require.NoError(t, s.SetReport(nil))

		assert.Nil(t, s.Report())
		assert.Nil(t, s.Statistics())
		assert.Empty(t, s.Matches())
		assert.Zero(t, s.Fingerprint())

		stored, err := repo.Load()
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}

func TestSession_SetTerms(t *testing.T) {
	s := newSession(t, repository.NewMemory())
	require.NoError(t, s.SetReport(newReport(loginItem, logoutItem, cartItem)))
	waitReady(t, s)

	s.SetTerms("login")
	assert.Equal(t, []string{loginItem.NodeID}, matchIDs(s.Matches()))
	assert.Equal(t, 1, s.Statistics().TotalCount)
	assert.Equal(t, "login", s.Terms())

	s.SetTerms("auth")
	assert.ElementsMatch(t, []string{loginItem.NodeID, logoutItem.NodeID}, matchIDs(s.Matches()))

	s.SetTerms("")
	assert.Len(t, s.Matches(), 3)
	assert.Equal(t, 3, s.Statistics().TotalCount)
}

func TestSession_ToggleMarker(t *testing.T) {
	s := newSession(t, repository.NewMemory())
	require.NoError(t, s.SetReport(newReport(loginItem, logoutItem, cartItem)))
	waitReady(t, s)

	s.ToggleMarker("slow")
	assert.Equal(t, filter.StatusIncluded, s.MarkerStatus("slow"))
	assert.Equal(t, []string{loginItem.NodeID, cartItem.NodeID}, matchIDs(s.Matches()))

	s.SetTerms("auth")
	assert.Equal(t, []string{loginItem.NodeID}, matchIDs(s.Matches()))

	s.ToggleMarker("slow")
	assert.Equal(t, filter.StatusExcluded, s.MarkerStatus("slow"))
	assert.Equal(t, []string{logoutItem.NodeID}, matchIDs(s.Matches()))

	s.ToggleMarker("slow")
	assert.Equal(t, filter.StatusNeither, s.MarkerStatus("slow"))
	assert.Len(t, s.Matches(), 2)
}

func TestSession_SetScope(t *testing.T) {
	s := newSession(t, repository.NewMemory(), WithScope("shop/"))
	require.NoError(t, s.SetReport(newReport(loginItem, logoutItem, cartItem)))
	waitReady(t, s)

	assert.Equal(t, []string{cartItem.NodeID}, matchIDs(s.Matches()))

	s.SetScope("auth/test_log")
	assert.Len(t, s.Matches(), 2)

	s.SetScope("")
	assert.Len(t, s.Matches(), 3)
	assert.Equal(t, "", s.Scope())
}

func TestSession_Pagination(t *testing.T) {
	items := make([]domain.TestItem, 45)
	for i := range items {
		items[i] = testItem(fmt.Sprintf("pkg/test_%02d.py", i), "test_case")
	}

	s := newSession(t, repository.NewMemory(), WithPageSize(20))
	require.NoError(t, s.SetReport(newReport(items...)))
	waitReady(t, s)

	steps := []struct {
		name   string
		move   func()
		offset int
	}{
		{"should start at zero", func() {}, 0},
		{"should advance one page", s.NextPage, 20},
		{"should clamp to the last full page", s.NextPage, 25},
		{"should not go past the end", s.NextPage, 25},
		{"should go back one page", s.PrevPage, 5},
		{"should clamp to zero", s.PrevPage, 0},
		{"should stay at zero", s.PrevPage, 0},
	}
	for _, step := range steps {
		step.move()
		assert.Equal(t, step.offset, s.Offset(), step.name)
	}

	s.NextPage()
	assert.Len(t, s.Results(), 20)
	assert.Equal(t, items[20].NodeID, s.Results()[0].ID)

	s.SetTerms("test")
	assert.Equal(t, 0, s.Offset(), "should reset the offset on term change")

	s.SetPage(1)
	s.ToggleMarker("missing")
	assert.Equal(t, 0, s.Offset(), "should reset the offset on marker change")
	assert.Empty(t, s.Results())

	s.ToggleMarker("missing")
	s.ToggleMarker("missing")
	s.SetPage(99)
	assert.Equal(t, 25, s.Offset())
	assert.Len(t, s.Results(), 20)
}

func TestSession_PaginationFewerThanAPage(t *testing.T) {
	s := newSession(t, repository.NewMemory(), WithPageSize(20))
	require.NoError(t, s.SetReport(newReport(loginItem)))
	waitReady(t, s)

	s.NextPage()
	assert.Equal(t, 0, s.Offset())
	assert.Len(t, s.Results(), 1)
}

func TestSession_PopulationFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := newSession(t, repository.NewMemory(), WithLogger(logger))
	require.NoError(t, s.SetReport(newReport(loginItem, loginItem)))
	waitReady(t, s)

	assert.Contains(t, buf.String(), "failed to add items to search engine")
	assert.Len(t, s.Matches(), 2, "should keep serving the unindexed items")
}

func TestSession_ReplaceReportDuringPopulation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	const n = 2000
	withDoc := func(doc string) *domain.DiscoveryResult {
		items := make([]domain.TestItem, n)
		for i := range items {
			items[i] = testItem(fmt.Sprintf("tests/test_%04d.py", i), "test_case")
			items[i].Doc = doc
		}
		return newReport(items...)
	}

	s := newSession(t, repository.NewMemory(),
		WithLogger(logger),
		WithLimit(0),
		WithEngineOptions(search.WithBatchSize(1)),
	)

	require.NoError(t, s.SetReport(withDoc("pineapple")))
	require.NoError(t, s.SetReport(withDoc("watermelon")))
	waitReady(t, s)

	assert.Equal(t, n, s.engine.Len())
	assert.NotContains(t, buf.String(), "failed to add items to search engine")

	s.SetTerms("pineapple")
	assert.Empty(t, s.Matches())

	s.SetTerms("watermelon")
	assert.Len(t, s.Matches(), n)
}

func TestSession_CloseWaitsForPopulation(t *testing.T) {
	items := make([]domain.TestItem, 500)
	for i := range items {
		items[i] = testItem(fmt.Sprintf("tests/test_%03d.py", i), "test_case")
	}

	s, err := NewSession(repository.NewMemory(), WithEngineOptions(search.WithBatchSize(1)))
	require.NoError(t, err)
	require.NoError(t, s.SetReport(newReport(items...)))
	first := s.IndexReady()
	require.NoError(t, s.SetReport(newReport(items[:10]...)))

	s.Close()

	for _, ready := range []<-chan struct{}{first, s.IndexReady()} {
		select {
		case <-ready:
		default:
			t.Fatal("population goroutine still running after Close")
		}
	}
}

func TestSession_Tree(t *testing.T) {
	s := newSession(t, repository.NewMemory())
	require.NoError(t, s.SetReport(newReport(loginItem, logoutItem, cartItem)))
	waitReady(t, s)

	s.ToggleMarker("slow")
	views, err := s.Tree()
	require.NoError(t, err)

	require.Len(t, views, 2)
	assert.Equal(t, "auth", views[0].Header().Path)
	assert.Equal(t, "shop", views[1].Header().Path)
	assert.Len(t, views[0].(*tree.DirectoryView).Files, 1)
}

func TestSession_Reset(t *testing.T) {
	s := newSession(t, repository.NewMemory())
	require.NoError(t, s.SetReport(newReport(loginItem, cartItem)))
	waitReady(t, s)

	s.ToggleMarker("slow")
	s.Reset()

	assert.Equal(t, filter.StatusNeither, s.MarkerStatus("slow"))
	assert.Empty(t, s.Matches())
	assert.Empty(t, s.Markers().Values())
	require.NotNil(t, s.Statistics())
	assert.Equal(t, 0, s.Statistics().TotalCount)
	assert.NotNil(t, s.Report())
}
