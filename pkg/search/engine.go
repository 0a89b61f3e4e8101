package search

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// BM25+ parameters.
const (
	bm25K1    = 1.2
	bm25B     = 0.7
	bm25Delta = 0.5

	prefixWeight = 0.375
	fuzzyWeight  = 0.45
	maxFuzzy     = 6
)

// DefaultBatchSize is the number of documents indexed per batch by AddAllAsync.
const DefaultBatchSize = 256

var (
	// ErrDuplicateID is returned when a document id is already indexed.
	ErrDuplicateID = errors.New("search: duplicate document id")
	// ErrNotFound is returned when removing a document that is not indexed.
	ErrNotFound = errors.New("search: document not found")
)

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	stemming  bool
	fields    []string
	batchSize int
}

// WithStemming reduces indexed and query terms to their porter2 stems.
func WithStemming() EngineOption {
	return func(o *engineOptions) {
		o.stemming = true
	}
}

// WithFields restricts the indexed fields. Unknown names are ignored.
func WithFields(fields ...string) EngineOption {
	return func(o *engineOptions) {
		o.fields = fields
	}
}

// WithBatchSize sets the number of documents indexed per AddAllAsync batch.
func WithBatchSize(n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

type entry struct {
	doc     Document
	lengths map[string]int
	terms   map[string][]string
}

// Engine is an inverted index over documents, safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	process   processor
	fields    []string
	batchSize int

	docs map[string]*entry
	// term -> field -> document id -> term frequency
	index    map[string]map[string]map[string]int
	totalLen map[string]int
}

// NewEngine creates an empty engine indexing SearchFields.
func NewEngine(opts ...EngineOption) *Engine {
	o := &engineOptions{
		fields:    SearchFields,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	process := processor(identity)
	if o.stemming {
		process = stem
	}

	return &Engine{
		process:   process,
		fields:    o.fields,
		batchSize: o.batchSize,
		docs:      make(map[string]*entry),
		index:     make(map[string]map[string]map[string]int),
		totalLen:  make(map[string]int),
	}
}

// Add indexes documents. It stops at the first document whose id is already
// indexed; documents before it remain indexed.
func (e *Engine) Add(docs ...Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, doc := range docs {
		if _, ok := e.docs[doc.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, doc.ID)
		}
		e.add(doc)
	}
	return nil
}

func (e *Engine) add(doc Document) {
	ent := &entry{
		doc:     doc,
		lengths: make(map[string]int, len(e.fields)),
		terms:   make(map[string][]string, len(e.fields)),
	}
	for _, field := range e.fields {
		terms := e.process.terms(doc.field(field))
		if len(terms) == 0 {
			continue
		}
		ent.lengths[field] = len(terms)
		e.totalLen[field] += len(terms)

		for _, term := range terms {
			fields, ok := e.index[term]
			if !ok {
				fields = make(map[string]map[string]int)
				e.index[term] = fields
			}
			postings, ok := fields[field]
			if !ok {
				postings = make(map[string]int)
				fields[field] = postings
			}
			if postings[doc.ID] == 0 {
				ent.terms[field] = append(ent.terms[field], term)
			}
			postings[doc.ID]++
		}
	}
	e.docs[doc.ID] = ent
}

// Remove drops the document with the given id from the index.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for field, terms := range ent.terms {
		e.totalLen[field] -= ent.lengths[field]
		for _, term := range terms {
			fields := e.index[term]
			delete(fields[field], id)
			if len(fields[field]) == 0 {
				delete(fields, field)
			}
			if len(fields) == 0 {
				delete(e.index, term)
			}
		}
	}
	delete(e.docs, id)
	return nil
}

// RemoveAll empties the index.
func (e *Engine) RemoveAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs = make(map[string]*entry)
	e.index = make(map[string]map[string]map[string]int)
	e.totalLen = make(map[string]int)
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Has reports whether a document with the given id is indexed.
func (e *Engine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.docs[id]
	return ok
}

// Combine selects how query terms are combined.
type Combine int

const (
	// CombineOr matches documents containing any query term.
	CombineOr Combine = iota
	// CombineAnd matches documents containing every query term.
	CombineAnd
)

// Options tunes a single search.
type Options struct {
	// Boost multiplies the score of matches in a field. Missing fields count 1.
	Boost map[string]float64
	// Filter drops results for which it returns false.
	Filter func(Result) bool
	// Limit caps the number of results. Zero means unlimited.
	Limit int
	// Prefix also matches indexed terms starting with a query term.
	Prefix bool
	// Fuzzy enables edit-distance matching. Values below 1 are a fraction of
	// the query term length, larger values an absolute distance.
	Fuzzy   float64
	Combine Combine
}

// Result is a scored document.
type Result struct {
	Document
	Score float64 `json:"score"`
	// Terms are the indexed terms that matched.
	Terms []string `json:"terms"`
	// QueryTerms are the query terms that produced a match.
	QueryTerms []string `json:"queryTerms"`
	// Match maps each matched term to the fields it was found in.
	Match map[string][]string `json:"match"`
}

type expansion struct {
	term   string
	weight float64
}

type hit struct {
	score      float64
	terms      map[string]struct{}
	queryTerms map[string]struct{}
	match      map[string]map[string]struct{}
}

func newHit() *hit {
	return &hit{
		terms:      make(map[string]struct{}),
		queryTerms: make(map[string]struct{}),
		match:      make(map[string]map[string]struct{}),
	}
}

func (h *hit) merge(o *hit) {
	h.score += o.score
	for t := range o.terms {
		h.terms[t] = struct{}{}
	}
	for q := range o.queryTerms {
		h.queryTerms[q] = struct{}{}
	}
	for t, fields := range o.match {
		if h.match[t] == nil {
			h.match[t] = make(map[string]struct{})
		}
		for f := range fields {
			h.match[t][f] = struct{}{}
		}
	}
}

// Search returns the documents matching query, best first.
// Ties are broken by document id. A query without terms returns nil.
func (e *Engine) Search(query string, opts Options) []Result {
	queryTerms := dedupe(e.process.terms(query))
	if len(queryTerms) == 0 {
		return nil
	}

	results := e.collect(queryTerms, opts)
	if opts.Filter != nil {
		kept := results[:0]
		for _, r := range results {
			if opts.Filter(r) {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func (e *Engine) collect(queryTerms []string, opts Options) []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := float64(len(e.docs))
	if total == 0 {
		return nil
	}

	var hits map[string]*hit
	for i, q := range queryTerms {
		perQuery := make(map[string]*hit)
		for _, x := range e.expand(q, opts) {
			for field, postings := range e.index[x.term] {
				boost := 1.0
				if b, ok := opts.Boost[field]; ok {
					boost = b
				}
				avg := float64(e.totalLen[field]) / total
				df := float64(len(postings))
				idf := math.Log(1 + (total-df+0.5)/(df+0.5))

				for id, tf := range postings {
					dl := float64(e.docs[id].lengths[field])
					freq := float64(tf)
					s := idf * (bm25Delta + freq*(bm25K1+1)/(freq+bm25K1*(1-bm25B+bm25B*dl/avg)))

					h, ok := perQuery[id]
					if !ok {
						h = newHit()
						perQuery[id] = h
					}
					h.score += x.weight * boost * s
					h.terms[x.term] = struct{}{}
					h.queryTerms[q] = struct{}{}
					if h.match[x.term] == nil {
						h.match[x.term] = make(map[string]struct{})
					}
					h.match[x.term][field] = struct{}{}
				}
			}
		}

		switch {
		case i == 0:
			hits = perQuery
		case opts.Combine == CombineAnd:
			for id, h := range hits {
				o, ok := perQuery[id]
				if !ok {
					delete(hits, id)
					continue
				}
				h.merge(o)
			}
		default:
			for id, o := range perQuery {
				if h, ok := hits[id]; ok {
					h.merge(o)
				} else {
					hits[id] = o
				}
			}
		}
	}

	results := make([]Result, 0, len(hits))
	for id, h := range hits {
		match := make(map[string][]string, len(h.match))
		for t, fields := range h.match {
			match[t] = sortedKeys(fields)
		}
		results = append(results, Result{
			Document:   e.docs[id].doc,
			Score:      h.score,
			Terms:      sortedKeys(h.terms),
			QueryTerms: sortedKeys(h.queryTerms),
			Match:      match,
		})
	}
	return results
}

// expand returns the indexed terms a query term matches, with their weight.
func (e *Engine) expand(q string, opts Options) []expansion {
	var out []expansion
	if _, ok := e.index[q]; ok {
		out = append(out, expansion{term: q, weight: 1})
	}
	if !opts.Prefix && opts.Fuzzy <= 0 {
		return out
	}

	qLen := utf8.RuneCountInString(q)
	maxDist := 0
	if opts.Fuzzy > 0 {
		if opts.Fuzzy < 1 {
			maxDist = int(math.Round(opts.Fuzzy * float64(qLen)))
		} else {
			maxDist = int(opts.Fuzzy)
		}
		maxDist = min(maxDist, maxFuzzy)
	}

	for t := range e.index {
		if t == q {
			continue
		}
		tLen := utf8.RuneCountInString(t)
		weight := 0.0

		if opts.Prefix && strings.HasPrefix(t, q) {
			weight = prefixWeight * float64(qLen) / float64(tLen)
		}
		if maxDist > 0 && abs(tLen-qLen) <= maxDist {
			if d := edlib.LevenshteinDistance(q, t); d <= maxDist {
				weight = max(weight, fuzzyWeight*float64(qLen)/float64(qLen+d))
			}
		}
		if weight > 0 {
			out = append(out, expansion{term: t, weight: weight})
		}
	}
	return out
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
