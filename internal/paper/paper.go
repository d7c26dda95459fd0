// Package paper defines the core domain types for conference papers.
package paper

import "strings"

// Author represents a paper author as listed by the conference.
type Author struct {
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
}

// Paper represents one accepted conference paper (poster, oral, spotlight).
type Paper struct {
	// Identity
	ID  string `json:"id"`            // Stable identifier from the conference API
	UID string `json:"uid,omitempty"` // Secondary hash-style identifier, if provided

	// Metadata
	Title    string   `json:"title"`
	Authors  []Author `json:"authors"`
	Abstract string   `json:"abstract"`
	Topic    string   `json:"topic,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Decision string   `json:"decision,omitempty"` // e.g. "Accept (poster)"

	// Scheduling
	Session        string `json:"session,omitempty"`
	EventType      string `json:"eventtype,omitempty"` // Poster, Oral, Spotlight
	PosterPosition string `json:"poster_position,omitempty"`
	Room           string `json:"room,omitempty"`
	StartTime      string `json:"starttime,omitempty"`
	EndTime        string `json:"endtime,omitempty"`

	// Links
	PaperURL   string `json:"paper_url,omitempty"`
	VirtualURL string `json:"virtual_url,omitempty"`

	// Provenance
	Conference string `json:"conference"`
	Year       int    `json:"year"`
}

// AuthorNames returns the author names in listed order.
func (p Paper) AuthorNames() []string {
	names := make([]string, len(p.Authors))
	for i, a := range p.Authors {
		names[i] = a.Name
	}
	return names
}

// FormatAuthors joins author names, abbreviating with "et al." past maxCount.
// A maxCount of zero or less lists every author.
func FormatAuthors(authors []Author, maxCount int) string {
	if len(authors) == 0 {
		return ""
	}
	var names []string
	for i, a := range authors {
		if maxCount > 0 && i >= maxCount {
			names = append(names, "et al.")
			break
		}
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
