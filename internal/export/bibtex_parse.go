package export

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

// BibTeXIndex indexes existing BibTeX entries so appends can skip papers
// that are already present.
type BibTeXIndex struct {
	// Keys maps citation keys to true for existence check
	Keys map[string]bool
	// URLs maps normalized url fields to citation keys
	URLs map[string]string
}

// NewBibTeXIndex creates an empty BibTeX index.
func NewBibTeXIndex() *BibTeXIndex {
	return &BibTeXIndex{
		Keys: make(map[string]bool),
		URLs: make(map[string]string),
	}
}

// HasEntry returns true if the entry already exists (by url or key).
// The url is the primary match; citation key is the fallback.
func (idx *BibTeXIndex) HasEntry(key, url string) bool {
	if url != "" {
		if _, exists := idx.URLs[normalizeURL(url)]; exists {
			return true
		}
	}
	return idx.Keys[key]
}

// Add records an entry written after the index was parsed.
func (idx *BibTeXIndex) Add(key, url string) {
	idx.Keys[key] = true
	if url != "" {
		idx.URLs[normalizeURL(url)] = key
	}
}

var (
	// @type{key,
	entryStartRegex = regexp.MustCompile(`@\w+\{([^,]+),`)
	// url = {value} or url = "value"
	urlFieldRegex = regexp.MustCompile(`(?i)^\s*url\s*=\s*[\{"]([^\}"]+)[\}"]`)
)

// ParseBibTeXFile builds an index from an existing .bib file.
// Returns an empty index if the file doesn't exist or is empty.
func ParseBibTeXFile(path string) (*BibTeXIndex, error) {
	idx := NewBibTeXIndex()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var currentKey string

	for scanner.Scan() {
		line := scanner.Text()

		if matches := entryStartRegex.FindStringSubmatch(line); len(matches) > 1 {
			currentKey = strings.TrimSpace(matches[1])
			idx.Keys[currentKey] = true
		}

		if matches := urlFieldRegex.FindStringSubmatch(line); len(matches) > 1 {
			if url := normalizeURL(matches[1]); url != "" && currentKey != "" {
				idx.URLs[url] = currentKey
			}
		}
	}

	return idx, scanner.Err()
}

// normalizeURL drops the scheme, a leading www. and trailing slashes, and lowercases.
func normalizeURL(url string) string {
	url = strings.TrimSpace(url)
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "www.")
	url = strings.TrimRight(url, "/")
	return strings.ToLower(url)
}

// AppendToBibFile appends BibTeX content to a file.
func AppendToBibFile(path, content string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	// Ensure we start on a new line
	_, err = file.WriteString("\n" + content)
	return err
}
