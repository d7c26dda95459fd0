package download

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Response is the top-level payload of {conference}-{year}-orals-posters.json.
type Response struct {
	Count   int         `json:"count"`
	Results []APIRecord `json:"results"`
}

// APIRecord is one event record as published by the conference site.
type APIRecord struct {
	ID             FlexString  `json:"id"`
	UID            string      `json:"uid"`
	Name           string      `json:"name"`
	Authors        []APIAuthor `json:"authors"`
	Abstract       string      `json:"abstract"`
	Topic          string      `json:"topic"`
	Keywords       FlexList    `json:"keywords"`
	Decision       string      `json:"decision"`
	Session        string      `json:"session"`
	EventType      string      `json:"eventtype"`
	PosterPosition string      `json:"poster_position"`
	RoomName       string      `json:"room_name"`
	StartTime      string      `json:"starttime"`
	EndTime        string      `json:"endtime"`
	PaperURL       string      `json:"paper_url"`
	VirtualSiteURL string      `json:"virtualsite_url"`
}

// APIAuthor is an author entry within an APIRecord.
type APIAuthor struct {
	FullName    string `json:"fullname"`
	Institution string `json:"institution"`
}

// FlexString accepts either a JSON string or a JSON number.
// The API has published ids both ways across years.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// FlexList accepts a JSON array of strings or a single comma-separated string.
type FlexList []string

func (f *FlexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*f = cleanList(items)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = cleanList(strings.Split(s, ","))
	return nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// FetchStats summarizes one Fetch call.
type FetchStats struct {
	Received  int  `json:"received"`
	Mapped    int  `json:"mapped"`
	Skipped   int  `json:"skipped"`
	FromCache bool `json:"from_cache"`
}
