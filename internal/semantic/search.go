package semantic

import (
	"math"
	"sort"

	"github.com/matsen/paperchat/internal/paper"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denominator := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}

// CosineDistance returns 1 - cosine similarity, in [0, 2].
func CosineDistance(a, b []float32) float64 {
	return 1 - float64(CosineSimilarity(a, b))
}

// Search finds entries matching filter that are closest to query.
// Results are sorted by distance (closest first), ties broken by id.
func (idx *SemanticIndex) Search(query []float32, limit int, filter paper.Filter) []SearchResult {
	if idx.Entries == nil || len(query) != idx.Dimensions {
		return nil
	}

	filter = filter.Normalize()
	results := make([]SearchResult, 0, len(idx.Entries))
	for paperID, e := range idx.Entries {
		if !filter.MatchesFields(e.Session, e.Topic, e.EventType) {
			continue
		}
		results = append(results, SearchResult{
			PaperID:  paperID,
			Distance: CosineDistance(query, e.Vector),
		})
	}

	sortResults(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

// FindSimilar ranks the entries matching filter by distance to paperID's
// vector. The source paper is excluded from results.
func (idx *SemanticIndex) FindSimilar(paperID string, limit int, filter paper.Filter) ([]SearchResult, error) {
	source, exists := idx.Entries[paperID]
	if !exists {
		return nil, ErrPaperNotIndexed
	}

	filter = filter.Normalize()
	results := make([]SearchResult, 0, len(idx.Entries))
	for id, e := range idx.Entries {
		if id == paperID || !filter.MatchesFields(e.Session, e.Topic, e.EventType) {
			continue
		}
		results = append(results, SearchResult{
			PaperID:  id,
			Distance: CosineDistance(source.Vector, e.Vector),
		})
	}

	sortResults(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].PaperID < results[j].PaperID
	})
}
