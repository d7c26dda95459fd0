package paper

import (
	"slices"
	"strings"
)

// Filter restricts papers by scheduling metadata.
//
// Values within one dimension are OR-ed, dimensions are AND-ed, and an empty
// dimension places no constraint.
type Filter struct {
	Sessions   []string `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Topics     []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	EventTypes []string `json:"eventtypes,omitempty" yaml:"eventtypes,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.Sessions) == 0 && len(f.Topics) == 0 && len(f.EventTypes) == 0
}

// Matches reports whether the paper satisfies the filter.
func (f Filter) Matches(p Paper) bool {
	return f.MatchesFields(p.Session, p.Topic, p.EventType)
}

// MatchesFields is Matches for callers that only hold the metadata fields,
// such as vector index entries.
func (f Filter) MatchesFields(session, topic, eventType string) bool {
	return matchAny(f.Sessions, session) &&
		matchAny(f.Topics, topic) &&
		matchAny(f.EventTypes, eventType)
}

// Equal reports whether two filters allow the same values, ignoring order,
// case and duplicates.
func (f Filter) Equal(other Filter) bool {
	return sameSet(f.Sessions, other.Sessions) &&
		sameSet(f.Topics, other.Topics) &&
		sameSet(f.EventTypes, other.EventTypes)
}

// Clone returns a deep copy.
func (f Filter) Clone() Filter {
	return Filter{
		Sessions:   slices.Clone(f.Sessions),
		Topics:     slices.Clone(f.Topics),
		EventTypes: slices.Clone(f.EventTypes),
	}
}

// Normalize trims whitespace and drops empty values.
func (f Filter) Normalize() Filter {
	return Filter{
		Sessions:   cleanValues(f.Sessions),
		Topics:     cleanValues(f.Topics),
		EventTypes: cleanValues(f.EventTypes),
	}
}

func matchAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	return slices.Equal(canonical(a), canonical(b))
}

func canonical(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func cleanValues(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
