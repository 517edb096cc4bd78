// Package source fetches video manifests and raw transcripts and turns them
// into quote units for the index coordinator.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Video is one manifest record.
type Video struct {
	VideoID    string `json:"bvid"`
	Author     string `json:"author"`
	Title      string `json:"title"`
	CoverURL   string `json:"coverUrl"`
	Date       string `json:"date"`
	Transcript string `json:"transcript"`
}

// looseString accepts a JSON string, number or bool and keeps its text.
// Manifests in the wild carry dates as unix numbers as often as strings.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*s = looseString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = looseString(strconv.FormatBool(b))
	return nil
}

type videoRecord struct {
	VideoID    looseString `json:"bvid"`
	Author     looseString `json:"author"`
	Title      looseString `json:"title"`
	CoverURL   looseString `json:"coverUrl"`
	Date       looseString `json:"date"`
	Transcript looseString `json:"transcript"`
}

func (r videoRecord) video() Video {
	return Video{
		VideoID:    string(r.VideoID),
		Author:     string(r.Author),
		Title:      string(r.Title),
		CoverURL:   string(r.CoverURL),
		Date:       string(r.Date),
		Transcript: string(r.Transcript),
	}
}

// ParseManifest decodes a manifest given either as a bare array of videos or
// as an object with a "videos" array. Anything else yields an empty
// manifest.
func ParseManifest(data []byte) ([]Video, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Video{}, nil
	}
	var records []videoRecord
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding manifest array: %w", err)
		}
	case '{':
		var wrapped struct {
			Videos []videoRecord `json:"videos"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding manifest object: %w", err)
		}
		records = wrapped.Videos
	default:
		return nil, fmt.Errorf("decoding manifest: unexpected leading byte %q", data[0])
	}
	videos := make([]Video, 0, len(records))
	for _, r := range records {
		videos = append(videos, r.video())
	}
	return videos, nil
}

// NormalizeManifest returns a copy of videos with string fields trimmed and
// a missing author replaced by defaultAuthor.
func NormalizeManifest(videos []Video, defaultAuthor string) []Video {
	out := make([]Video, len(videos))
	for i, v := range videos {
		v.VideoID = strings.TrimSpace(v.VideoID)
		v.Author = strings.TrimSpace(v.Author)
		if v.Author == "" {
			v.Author = defaultAuthor
		}
		v.Title = strings.TrimSpace(v.Title)
		v.CoverURL = strings.TrimSpace(v.CoverURL)
		v.Date = strings.TrimSpace(v.Date)
		v.Transcript = strings.TrimSpace(v.Transcript)
		out[i] = v
	}
	return out
}

// FilterByAuthor keeps the videos of author. An empty author keeps all.
func FilterByAuthor(videos []Video, author string) []Video {
	if author == "" {
		return videos
	}
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		if v.Author == author {
			out = append(out, v)
		}
	}
	return out
}

// Authors lists the distinct non-empty authors in first-seen order, or
// just defaultAuthor when there are none.
func Authors(videos []Video, defaultAuthor string) []string {
	seen := make(map[string]struct{})
	var authors []string
	for _, v := range videos {
		if v.Author == "" {
			continue
		}
		if _, ok := seen[v.Author]; ok {
			continue
		}
		seen[v.Author] = struct{}{}
		authors = append(authors, v.Author)
	}
	if len(authors) == 0 {
		return []string{defaultAuthor}
	}
	return authors
}
