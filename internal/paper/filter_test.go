package paper

import "testing"

func TestFilter_Matches(t *testing.T) {
	p := Paper{ID: "1", Session: "San Diego Poster Session 1", Topic: "Deep Learning", EventType: "Poster"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"matching session", Filter{Sessions: []string{"San Diego Poster Session 1"}}, true},
		{"session case-insensitive", Filter{Sessions: []string{"san diego poster session 1"}}, true},
		{"other session", Filter{Sessions: []string{"Mexico City Oral 2"}}, false},
		{"any of sessions", Filter{Sessions: []string{"Other", "San Diego Poster Session 1"}}, true},
		{"session and topic", Filter{Sessions: []string{"San Diego Poster Session 1"}, Topics: []string{"Deep Learning"}}, true},
		{"session but wrong topic", Filter{Sessions: []string{"San Diego Poster Session 1"}, Topics: []string{"Theory"}}, false},
		{"event type only", Filter{EventTypes: []string{"Oral"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(p); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Equal(t *testing.T) {
	a := Filter{Sessions: []string{"B", "A"}, Topics: []string{"x"}}
	b := Filter{Sessions: []string{"a", "b", "a"}, Topics: []string{" X "}}
	if !a.Equal(b) {
		t.Error("filters with same values in different order should be equal")
	}

	c := Filter{Sessions: []string{"A"}}
	if a.Equal(c) {
		t.Error("filters with different sessions should not be equal")
	}

	if !(Filter{}).Equal(Filter{Topics: []string{}}) {
		t.Error("empty and nil dimensions should be equal")
	}
}

func TestFilter_CloneIsIndependent(t *testing.T) {
	orig := Filter{Sessions: []string{"A"}}
	clone := orig.Clone()
	clone.Sessions[0] = "B"
	if orig.Sessions[0] != "A" {
		t.Errorf("Clone shares backing array: orig = %v", orig.Sessions)
	}
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Sessions: []string{" A ", ""}, EventTypes: []string{"  "}}.Normalize()
	if len(f.Sessions) != 1 || f.Sessions[0] != "A" {
		t.Errorf("Sessions = %v, want [A]", f.Sessions)
	}
	if !f.IsEmpty() && len(f.EventTypes) != 0 {
		t.Errorf("EventTypes = %v, want empty", f.EventTypes)
	}
}

func TestFormatAuthors(t *testing.T) {
	authors := []Author{{Name: "Ada Lovelace"}, {Name: "Alan Turing"}, {Name: "Grace Hopper"}}

	tests := []struct {
		name     string
		maxCount int
		want     string
	}{
		{"all", 0, "Ada Lovelace, Alan Turing, Grace Hopper"},
		{"truncated", 2, "Ada Lovelace, Alan Turing, et al."},
		{"exact", 3, "Ada Lovelace, Alan Turing, Grace Hopper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAuthors(authors, tt.maxCount); got != tt.want {
				t.Errorf("FormatAuthors() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := FormatAuthors(nil, 3); got != "" {
		t.Errorf("FormatAuthors(nil) = %q, want empty", got)
	}
}
