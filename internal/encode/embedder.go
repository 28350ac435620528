// Package encode embeds high-cardinality categorical features into dense
// numeric vectors suitable for model training.
package encode

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/halcyon-data/mlprep/internal/frame"
	"github.com/halcyon-data/mlprep/internal/transform"
)

// Defaults for Embedder construction.
const (
	DefaultOOVBuckets = 2
	DefaultDimension  = 8
)

// Embedder maps a categorical column to a fixed-width float32 embedding.
// The embedding table is deterministic for a given key, vocabulary, and
// dimension, so a fitted embedder can be persisted and reloaded without
// storing the table itself. Out-of-vocabulary values hash into a small set
// of shared OOV rows rather than failing.
type Embedder struct {
	key        string
	oovBuckets int
	dimension  int

	vocab      []string
	vocabIndex map[string]int
	table      [][]float32
	values     [][]float32
	fitted     bool
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithKey names the feature; the name seeds the embedding table.
func WithKey(key string) Option {
	return func(e *Embedder) { e.key = key }
}

// WithOOVBuckets sets the number of shared rows for unseen categories.
func WithOOVBuckets(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.oovBuckets = n
		}
	}
}

// WithDimension sets the embedding width.
func WithDimension(d int) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.dimension = d
		}
	}
}

// NewEmbedder creates an Embedder with the given options.
func NewEmbedder(opts ...Option) *Embedder {
	e := &Embedder{
		oovBuckets: DefaultOOVBuckets,
		dimension:  DefaultDimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key returns the feature name.
func (e *Embedder) Key() string { return e.key }

// Dimension returns the embedding width.
func (e *Embedder) Dimension() int { return e.dimension }

// OOVBuckets returns the number of out-of-vocabulary rows.
func (e *Embedder) OOVBuckets() int { return e.oovBuckets }

// Vocab returns the learned vocabulary in sorted order.
func (e *Embedder) Vocab() []string {
	return append([]string(nil), e.vocab...)
}

// Values returns the result of the most recent Transform.
func (e *Embedder) Values() [][]float32 { return e.values }

// Fit learns the vocabulary: the sorted unique values of the input. Missing
// values are rejected; impute or drop them first.
func (e *Embedder) Fit(values []string) error {
	if len(values) == 0 {
		return eris.New("encode: input is empty")
	}
	uniq := make(map[string]bool, len(values))
	for _, v := range values {
		if frame.IsMissingToken(v) {
			return eris.New("encode: input contains missing values")
		}
		uniq[v] = true
	}

	e.vocab = make([]string, 0, len(uniq))
	for v := range uniq {
		e.vocab = append(e.vocab, v)
	}
	sort.Strings(e.vocab)

	e.vocabIndex = make(map[string]int, len(e.vocab))
	for i, v := range e.vocab {
		e.vocabIndex[v] = i
	}
	e.table = buildTable(e.key, e.dimension, len(e.vocab)+e.oovBuckets)
	e.values = nil
	e.fitted = true
	return nil
}

// Transform maps each value to its embedding row, producing a matrix of
// shape (len(values), Dimension). Unseen values hash into an OOV row.
func (e *Embedder) Transform(values []string) ([][]float32, error) {
	if !e.fitted {
		return nil, &transform.NotFittedError{Estimator: "Embedder"}
	}
	out := make([][]float32, len(values))
	for i, v := range values {
		if frame.IsMissingToken(v) {
			return nil, eris.New("encode: input contains missing values")
		}
		out[i] = e.table[e.rowFor(v)]
	}
	e.values = out
	return out, nil
}

// FitTransform fits the vocabulary and transforms the input in one call.
func (e *Embedder) FitTransform(values []string) ([][]float32, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// TransformFrame replaces the named string column with Dimension float
// columns named <col>_emb_<i>.
func (e *Embedder) TransformFrame(f *frame.Frame, col string) (*frame.Frame, error) {
	c, err := f.Column(col)
	if err != nil {
		return nil, err
	}
	if c.Kind != frame.String {
		return nil, eris.Errorf("encode: column %q is not a string column", col)
	}
	if c.MissingCount() > 0 {
		return nil, eris.Errorf("encode: column %q contains missing values", col)
	}

	embedded, err := e.Transform(c.Strings)
	if err != nil {
		return nil, err
	}

	out, err := f.Drop(col)
	if err != nil {
		return nil, err
	}
	n := len(embedded)
	for j := 0; j < e.dimension; j++ {
		fc := &frame.Column{
			Name:    fmt.Sprintf("%s_emb_%d", col, j),
			Kind:    frame.Float,
			Floats:  make([]float64, n),
			Missing: make([]bool, n),
		}
		for i := 0; i < n; i++ {
			fc.Floats[i] = float64(embedded[i][j])
		}
		out, err = out.AppendColumn(fc)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rowFor returns the table row for a value: its vocabulary index, or an OOV
// bucket chosen by FNV-1a hash.
func (e *Embedder) rowFor(v string) int {
	if i, ok := e.vocabIndex[v]; ok {
		return i
	}
	h := fnv.New32a()
	h.Write([]byte(v))
	return len(e.vocab) + int(h.Sum32()%uint32(e.oovBuckets))
}

// buildTable generates a deterministic rows x dim table of values in
// [-1, 1), seeded by the feature key.
func buildTable(key string, dim, rows int) [][]float32 {
	h := fnv.New64a()
	h.Write([]byte(key))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed))

	table := make([][]float32, rows)
	for i := range table {
		row := make([]float32, dim)
		for j := range row {
			row[j] = float32(rng.Float64()*2 - 1)
		}
		table[i] = row
	}
	return table
}

// embedderParams is the persisted form of a fitted Embedder.
type embedderParams struct {
	Key        string   `json:"key"`
	OOVBuckets int      `json:"oov_buckets"`
	Dimension  int      `json:"dimension"`
	Vocab      []string `json:"vocab,omitempty"`
}

// MarshalJSON persists the embedder configuration and learned vocabulary.
func (e *Embedder) MarshalJSON() ([]byte, error) {
	return json.Marshal(embedderParams{
		Key:        e.key,
		OOVBuckets: e.oovBuckets,
		Dimension:  e.dimension,
		Vocab:      e.vocab,
	})
}

// UnmarshalJSON restores a persisted embedder; the embedding table is
// regenerated deterministically from the key.
func (e *Embedder) UnmarshalJSON(data []byte) error {
	var p embedderParams
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "encode: unmarshal embedder params")
	}
	e.key = p.Key
	e.oovBuckets = p.OOVBuckets
	e.dimension = p.Dimension
	if e.oovBuckets <= 0 {
		e.oovBuckets = DefaultOOVBuckets
	}
	if e.dimension <= 0 {
		e.dimension = DefaultDimension
	}
	if len(p.Vocab) == 0 {
		e.fitted = false
		return nil
	}
	e.vocab = p.Vocab
	e.vocabIndex = make(map[string]int, len(e.vocab))
	for i, v := range e.vocab {
		e.vocabIndex[v] = i
	}
	e.table = buildTable(e.key, e.dimension, len(e.vocab)+e.oovBuckets)
	e.fitted = true
	return nil
}
