// Package search provides a small, deterministic, concurrency-safe in-memory
// index used to match a free-text query against nutritionist profiles.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware, case-folded tokenization with stop-word removal
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|. Specialty tokens are
// counted twice in the document so a specialty hit outranks a bio hit.
package search

import (
	"regexp"
	"sort"
	"strings"
)

// Doc is one indexed entity. Tags are weighted above Text.
type Doc struct {
	ID   string
	Tags []string
	Text string
}

// Result is a ranked document id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Score(query, id string) float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	tagWeight int
}

func defaultConfig() config {
	return config{
		stopwords: defaultStopwords,
		tagWeight: 2,
	}
}

// WithStopwords replaces the default English stop-word list.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = Fold(w)
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithTagWeight sets how many times a tag token counts relative to text.
func WithTagWeight(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.tagWeight = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	tokens map[string]int // token -> weight
	weight int           // sum of weights
}

type index struct {
	cfg  config
	docs []doc
	byID map[string]int
}

// NewIndex builds an Index over docs. Docs without any token are dropped.
func NewIndex(docs []Doc, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	idx := &index{cfg: cfg, docs: make([]doc, 0, len(docs)), byID: make(map[string]int, len(docs))}
	for _, d := range docs {
		toks := make(map[string]int)
		for _, tag := range d.Tags {
			for t := range tokenize(tag, cfg.stopwords) {
				toks[t] = cfg.tagWeight
			}
		}
		for t := range tokenize(d.Text, cfg.stopwords) {
			if _, ok := toks[t]; !ok {
				toks[t] = 1
			}
		}
		if len(toks) == 0 {
			continue
		}
		w := 0
		for _, v := range toks {
			w += v
		}
		idx.byID[d.ID] = len(idx.docs)
		idx.docs = append(idx.docs, doc{id: d.ID, tokens: toks, weight: w})
	}
	return idx
}

// TopK returns up to k best-matching documents. Documents with no overlap
// are omitted. Ties are broken by id.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	buf := make([]Result, 0, len(i.docs))
	for _, d := range i.docs {
		if s := jaccard(qTokens, d); s > 0 {
			buf = append(buf, Result{ID: d.id, Score: s})
		}
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].ID < buf[b].ID
	})
	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

// Score returns the similarity of a single document, 0 when unknown.
func (i *index) Score(q, id string) float64 {
	pos, ok := i.byID[id]
	if !ok {
		return 0
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return 0
	}
	return jaccard(qTokens, i.docs[pos])
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(Fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// jaccard is the weighted Jaccard similarity; query tokens weigh 1.
func jaccard(q map[string]struct{}, d doc) float64 {
	inter, qOnly := 0, 0
	for t := range q {
		if w, ok := d.tokens[t]; ok {
			inter += w
		} else {
			qOnly++
		}
	}
	if inter == 0 {
		return 0
	}
	return float64(inter) / float64(d.weight+qOnly)
}

var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "i": {}, "my": {},
	"me": {}, "want": {}, "need": {}, "help": {}, "about": {}, "how": {}, "can": {},
	"what": {}, "do": {}, "some": {}, "get": {},
}
