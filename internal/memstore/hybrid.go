package memstore

import (
	"context"
	"sort"
	"strings"
)

// FusionMode selects how HybridSearch combines vector and keyword results.
type FusionMode int

const (
	// FusionRRF combines results by reciprocal rank fusion (k=60).
	FusionRRF FusionMode = iota
	// FusionWeighted combines results by a weighted sum of normalized scores.
	FusionWeighted
)

const rrfK = 60

// HybridOptions configures HybridSearch.
type HybridOptions struct {
	TopK          int
	Filters       Filters
	Mode          FusionMode
	VectorWeight  float64 // used when Mode == FusionWeighted; default 0.7
	KeywordWeight float64 // used when Mode == FusionWeighted; default 0.3
}

func dedupeKey(c Chunk) string {
	text := c.Text
	if len(text) > 100 {
		text = text[:100]
	}
	return c.Source + "|" + text
}

// HybridSearch fetches 2*topK candidates from both the vector and keyword
// searches and fuses them, deduplicating by (source, text[:100]).
func (s *Store) HybridSearch(ctx context.Context, q string, queryVec []float32, opts HybridOptions) ([]Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	fetchK := topK * 2

	vecResults, _ := s.Search(ctx, queryVec, fetchK, 0, opts.Filters)
	kwResults, _ := s.SearchKeyword(ctx, q, fetchK, opts.Filters)

	switch opts.Mode {
	case FusionWeighted:
		return fuseWeighted(vecResults, kwResults, opts, topK), nil
	default:
		return fuseRRF(vecResults, kwResults, topK), nil
	}
}

// fuseRRF combines ranked results by reciprocal rank fusion. The merged
// slice is built by iterating vecResults then kwResults directly (never
// a map), the same deterministic-order pattern as the teacher's ReScore,
// so equal-score ties sort reproducibly across runs.
func fuseRRF(vecResults, kwResults []Result, topK int) []Result {
	scores := make(map[string]float64)
	index := make(map[string]int)
	var out []Result

	for rank, r := range vecResults {
		key := dedupeKey(r.Chunk)
		scores[key] += 1.0 / float64(rrfK+rank+1)
		index[key] = len(out)
		out = append(out, r)
	}
	for rank, r := range kwResults {
		key := dedupeKey(r.Chunk)
		scores[key] += 1.0 / float64(rrfK+rank+1)
		if i, ok := index[key]; ok {
			out[i].KeywordScore = r.KeywordScore
		} else {
			index[key] = len(out)
			out = append(out, r)
		}
	}

	for i := range out {
		key := dedupeKey(out[i].Chunk)
		score := scores[key]
		out[i].RRFScore = &score
		out[i].Score = score
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func fuseWeighted(vecResults, kwResults []Result, opts HybridOptions, topK int) []Result {
	vw, kw := opts.VectorWeight, opts.KeywordWeight
	if vw == 0 && kw == 0 {
		vw, kw = 0.7, 0.3
	}

	var minBM25, maxBM25 float64
	first := true
	for _, r := range kwResults {
		if r.KeywordScore == nil {
			continue
		}
		v := *r.KeywordScore
		if first {
			minBM25, maxBM25 = v, v
			first = false
			continue
		}
		if v < minBM25 {
			minBM25 = v
		}
		if v > maxBM25 {
			maxBM25 = v
		}
	}

	index := make(map[string]int)
	var out []Result
	for _, r := range vecResults {
		key := dedupeKey(r.Chunk)
		r.VectorScore = ptr(r.Score)
		r.Score = r.Score * vw
		index[key] = len(out)
		out = append(out, r)
	}
	for _, r := range kwResults {
		key := dedupeKey(r.Chunk)
		normalized := 0.0
		if r.KeywordScore != nil && maxBM25 != minBM25 {
			normalized = (maxBM25 - *r.KeywordScore) / (maxBM25 - minBM25)
		}
		if i, ok := index[key]; ok {
			out[i].KeywordScore = r.KeywordScore
			out[i].Score += normalized * kw
		} else {
			r.Score = normalized * kw
			index[key] = len(out)
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// BuildQueryTokens joins messages with spaces and keeps the last maxChars
// bytes, for callers composing a search query from recent chat turns. The
// prompt builder does not call it; it uses promptbuilder.VectorQuery.
func BuildQueryTokens(messages []string, maxChars int) string {
	joined := strings.Join(messages, " ")
	if len(joined) > maxChars {
		joined = joined[len(joined)-maxChars:]
	}
	return joined
}
