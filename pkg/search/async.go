package search

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Population tracks an asynchronous AddAllAsync run.
type Population struct {
	done   chan struct{}
	cancel context.CancelFunc
	added  int
	err    error
}

// Done is closed when the population has finished, successfully or not.
func (p *Population) Done() <-chan struct{} {
	return p.done
}

// Err returns the population error once Done is closed, nil before.
func (p *Population) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Added returns the number of documents indexed once Done is closed.
func (p *Population) Added() int {
	select {
	case <-p.done:
		return p.added
	default:
		return 0
	}
}

// Wait blocks until the population finishes or ctx is done.
func (p *Population) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the population after the batch in progress.
func (p *Population) Cancel() {
	p.cancel()
}

// AddAllAsync indexes docs in batches on a background goroutine.
// The returned Population reports completion; the first failing batch stops
// the run. docs is copied before returning.
func (e *Engine) AddAllAsync(ctx context.Context, docs []Document) *Population {
	docs = append([]Document(nil), docs...)

	ctx, cancel := context.WithCancel(ctx)
	p := &Population{done: make(chan struct{}), cancel: cancel}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for start := 0; start < len(docs); start += e.batchSize {
			if err := gctx.Err(); err != nil {
				return err
			}
			end := min(start+e.batchSize, len(docs))
			if err := e.Add(docs[start:end]...); err != nil {
				return err
			}
			p.added = end
		}
		return nil
	})

	go func() {
		defer close(p.done)
		p.err = g.Wait()
		cancel()
	}()
	return p
}
