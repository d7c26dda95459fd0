package author

import (
	"testing"

	"github.com/matsen/paperchat/internal/paper"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Query
	}{
		{
			name:  "single word is last name",
			input: "Yu",
			want:  Query{Last: "Yu"},
		},
		{
			name:  "two words is First Last",
			input: "Timothy Yu",
			want:  Query{First: "Timothy", Last: "Yu"},
		},
		{
			name:  "three words: first two are first name",
			input: "Timothy C Yu",
			want:  Query{First: "Timothy C", Last: "Yu"},
		},
		{
			name:  "comma format: Last, First",
			input: "Yu, Timothy",
			want:  Query{First: "Timothy", Last: "Yu"},
		},
		{
			name:  "comma format with spaces",
			input: "Yu,  Timothy C",
			want:  Query{First: "Timothy C", Last: "Yu"},
		},
		{
			name:  "leading/trailing whitespace",
			input: "  Bloom  ",
			want:  Query{Last: "Bloom"},
		},
		{
			name:  "empty string",
			input: "",
			want:  Query{},
		},
		{
			name:  "whitespace only",
			input: "   ",
			want:  Query{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuery(tt.input)
			if got != tt.want {
				t.Errorf("ParseQuery(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		full, last, first string
	}{
		{"Ashish Vaswani", "Vaswani", "Ashish"},
		{"Timothy C  Yu", "Yu", "Timothy C"},
		{"Plato", "Plato", ""},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		last, first := SplitName(tt.full)
		if last != tt.last || first != tt.first {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.full, last, first, tt.last, tt.first)
		}
	}
}

func TestQuery_Matches(t *testing.T) {
	tests := []struct {
		name   string
		query  Query
		author string
		want   bool
	}{
		{"last name only matches", Query{Last: "Yu"}, "Timothy C Yu", true},
		{"last name is case-insensitive", Query{Last: "yu"}, "Timothy Yu", true},
		{"last name must be exact", Query{Last: "Yu"}, "Yujia Li", false},
		{"last name is not a prefix match", Query{Last: "Yu"}, "Jane Yuan", false},
		{"first name prefix matches", Query{First: "Tim", Last: "Yu"}, "Timothy C Yu", true},
		{"first name prefix is case-insensitive", Query{First: "tim", Last: "Yu"}, "Timothy Yu", true},
		{"first name mismatch", Query{First: "Tom", Last: "Yu"}, "Timothy Yu", false},
		{"first name required when given", Query{First: "Tim", Last: "Plato"}, "Plato", false},
		{"empty query matches nothing", Query{}, "Timothy Yu", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.query.Matches(paper.Author{Name: tt.author})
			if got != tt.want {
				t.Errorf("%+v.Matches(%q) = %v, want %v", tt.query, tt.author, got, tt.want)
			}
		})
	}
}

func TestAllMatch(t *testing.T) {
	authors := []paper.Author{{Name: "Timothy Yu"}, {Name: "Frederick Matsen"}}

	if !AllMatch([]Query{{Last: "Yu"}, {Last: "Matsen"}}, authors) {
		t.Error("both authors present should match")
	}
	if AllMatch([]Query{{Last: "Yu"}, {Last: "Bloom"}}, authors) {
		t.Error("missing author should not match")
	}
	if !AllMatch(nil, authors) {
		t.Error("no queries should match everything")
	}
}

func TestFilterPapers(t *testing.T) {
	papers := []paper.Paper{
		{ID: "1", Authors: []paper.Author{{Name: "Timothy Yu"}}},
		{ID: "2", Authors: []paper.Author{{Name: "Yujia Li"}}},
		{ID: "3", Authors: []paper.Author{{Name: "Ann Yu"}, {Name: "Bo Chen"}}},
		{ID: "4", Authors: []paper.Author{{Name: "Carl Yu"}}},
	}
	queries := []Query{ParseQuery("Yu")}

	got := FilterPapers(papers, queries, 0)
	if len(got) != 3 || got[0].ID != "1" || got[1].ID != "3" || got[2].ID != "4" {
		t.Errorf("FilterPapers = %v", ids(got))
	}

	got = FilterPapers(papers, queries, 2)
	if len(got) != 2 || got[1].ID != "3" {
		t.Errorf("FilterPapers with limit = %v", ids(got))
	}
}

func ids(papers []paper.Paper) []string {
	out := make([]string, len(papers))
	for i, p := range papers {
		out[i] = p.ID
	}
	return out
}
