package semantic

import (
	"math"
	"testing"

	"github.com/matsen/paperchat/internal/paper"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: -1.0,
		},
		{
			name:     "similar vectors",
			a:        []float32{1, 1},
			b:        []float32{1, 0},
			expected: 0.7071067, // cos(45 degrees)
		},
		{
			name:     "empty vectors",
			a:        []float32{},
			b:        []float32{},
			expected: 0.0,
		},
		{
			name:     "different lengths",
			a:        []float32{1, 0},
			b:        []float32{1, 0, 0},
			expected: 0.0,
		},
		{
			name:     "zero vector a",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 0.0,
		},
		{
			name:     "zero vector b",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 0, 0},
			expected: 0.0,
		},
		{
			name:     "normalized vectors",
			a:        []float32{0.6, 0.8},
			b:        []float32{0.6, 0.8},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.expected)) > 0.0001 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	if got := CosineDistance([]float32{1, 0}, []float32{1, 0}); math.Abs(got) > 1e-6 {
		t.Errorf("CosineDistance(identical) = %v, want 0", got)
	}
	if got := CosineDistance([]float32{1, 0}, []float32{-1, 0}); math.Abs(got-2) > 1e-6 {
		t.Errorf("CosineDistance(opposite) = %v, want 2", got)
	}
}

func testIndex(t *testing.T) *SemanticIndex {
	t.Helper()
	idx := NewSemanticIndex("test-model", 3)
	entries := map[string]Entry{
		"p1": {Vector: []float32{1, 0, 0}, Session: "Poster Session 1", EventType: "Poster"},
		"p2": {Vector: []float32{0.9, 0.1, 0}, Session: "Poster Session 2", EventType: "Poster"},
		"p3": {Vector: []float32{0, 1, 0}, Session: "Oral Session 1", EventType: "Oral", Topic: "Theory"},
		"p4": {Vector: []float32{0, 0, 1}, Session: "Poster Session 1", EventType: "Spotlight"},
	}
	for id, e := range entries {
		if err := idx.AddEmbedding(id, e); err != nil {
			t.Fatalf("AddEmbedding(%s) error = %v", id, err)
		}
	}
	return idx
}

func resultIDs(results []SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.PaperID
	}
	return ids
}

func TestSearch(t *testing.T) {
	idx := testIndex(t)
	query := []float32{1, 0, 0}

	tests := []struct {
		name   string
		limit  int
		filter paper.Filter
		want   []string
	}{
		{"ranked by distance", 0, paper.Filter{}, []string{"p1", "p2", "p3", "p4"}},
		{"limit", 2, paper.Filter{}, []string{"p1", "p2"}},
		{"filter before ranking", 1, paper.Filter{Sessions: []string{"poster session 2"}}, []string{"p2"}},
		{"and across dimensions", 0, paper.Filter{
			Sessions:   []string{"Poster Session 1"},
			EventTypes: []string{"Spotlight"},
		}, []string{"p4"}},
		{"or within dimension", 0, paper.Filter{EventTypes: []string{"Oral", "Spotlight"}}, []string{"p3", "p4"}},
		{"no match", 0, paper.Filter{Topics: []string{"Vision"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resultIDs(idx.Search(query, tt.limit, tt.filter))
			if len(got) != len(tt.want) {
				t.Fatalf("Search() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Search()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSearch_DistanceValues(t *testing.T) {
	idx := testIndex(t)
	results := idx.Search([]float32{1, 0, 0}, 1, paper.Filter{})
	if len(results) != 1 || math.Abs(results[0].Distance) > 1e-6 {
		t.Errorf("Search() = %+v, want p1 at distance 0", results)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	idx := testIndex(t)
	if got := idx.Search([]float32{1, 0}, 5, paper.Filter{}); got != nil {
		t.Errorf("Search() with wrong dimensions = %v, want nil", got)
	}
}

func TestSearch_TiesBrokenByID(t *testing.T) {
	idx := NewSemanticIndex("m", 2)
	idx.AddEmbedding("b", Entry{Vector: []float32{1, 0}})
	idx.AddEmbedding("a", Entry{Vector: []float32{2, 0}})

	got := resultIDs(idx.Search([]float32{1, 0}, 0, paper.Filter{}))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Search() = %v, want [a b]", got)
	}
}

func TestFindSimilar(t *testing.T) {
	idx := testIndex(t)

	results, err := idx.FindSimilar("p1", 2, paper.Filter{})
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	got := resultIDs(results)
	if len(got) != 2 || got[0] != "p2" {
		t.Errorf("FindSimilar(p1) = %v, want p2 first", got)
	}
	for _, id := range got {
		if id == "p1" {
			t.Error("FindSimilar() should exclude the source paper")
		}
	}

	if _, err := idx.FindSimilar("missing", 2, paper.Filter{}); err != ErrPaperNotIndexed {
		t.Errorf("FindSimilar(missing) error = %v, want ErrPaperNotIndexed", err)
	}

	results, err = idx.FindSimilar("p1", 5, paper.Filter{EventTypes: []string{"Oral", "Poster"}})
	if err != nil {
		t.Fatalf("filtered FindSimilar() error = %v", err)
	}
	got = resultIDs(results)
	if len(got) != 2 || got[0] != "p2" || got[1] != "p3" {
		t.Errorf("filtered FindSimilar(p1) = %v, want [p2 p3]", got)
	}
}
