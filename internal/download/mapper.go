package download

import (
	"strings"

	"github.com/matsen/paperchat/internal/paper"
)

// MapPapers converts API records to papers, tagging each with conference and year.
// Records without an id or title are skipped; the second return value counts them.
func MapPapers(records []APIRecord, conference string, year int) ([]paper.Paper, int) {
	papers := make([]paper.Paper, 0, len(records))
	skipped := 0
	seen := make(map[string]bool, len(records))

	for _, r := range records {
		id := strings.TrimSpace(string(r.ID))
		title := strings.TrimSpace(r.Name)
		if id == "" || title == "" || seen[id] {
			skipped++
			continue
		}
		seen[id] = true
		papers = append(papers, mapRecord(r, id, title, conference, year))
	}
	return papers, skipped
}

func mapRecord(r APIRecord, id, title, conference string, year int) paper.Paper {
	return paper.Paper{
		ID:             id,
		UID:            strings.TrimSpace(r.UID),
		Title:          title,
		Authors:        mapAuthors(r.Authors),
		Abstract:       strings.TrimSpace(r.Abstract),
		Topic:          strings.TrimSpace(r.Topic),
		Keywords:       []string(r.Keywords),
		Decision:       strings.TrimSpace(r.Decision),
		Session:        strings.TrimSpace(r.Session),
		EventType:      strings.TrimSpace(r.EventType),
		PosterPosition: strings.TrimSpace(r.PosterPosition),
		Room:           strings.TrimSpace(r.RoomName),
		StartTime:      strings.TrimSpace(r.StartTime),
		EndTime:        strings.TrimSpace(r.EndTime),
		PaperURL:       strings.TrimSpace(r.PaperURL),
		VirtualURL:     strings.TrimSpace(r.VirtualSiteURL),
		Conference:     strings.ToLower(conference),
		Year:           year,
	}
}

func mapAuthors(apiAuthors []APIAuthor) []paper.Author {
	authors := make([]paper.Author, 0, len(apiAuthors))
	for _, a := range apiAuthors {
		name := strings.Join(strings.Fields(a.FullName), " ")
		if name == "" {
			continue
		}
		authors = append(authors, paper.Author{
			Name:        name,
			Institution: strings.TrimSpace(a.Institution),
		})
	}
	return authors
}
