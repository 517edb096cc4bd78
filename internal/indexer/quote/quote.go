// Package quote turns raw transcript segments into quote units: coherent
// snippets with a stable ID, time offsets and the text of their neighbours.
package quote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxBufferedChars bounds how much un-terminated speech is merged into one
// quote before it is emitted anyway.
const maxBufferedChars = 220

var sentenceEnd = regexp.MustCompile(`[.!?…]["'”)]?$`)

// Segment is one raw transcript segment as returned by a data source.
type Segment struct {
	ID    json.RawMessage `json:"id,omitempty"`
	Start *float64        `json:"start,omitempty"`
	End   *float64        `json:"end,omitempty"`
	Text  string          `json:"text,omitempty"`
	Texts string          `json:"texts,omitempty"`
}

// HasID reports whether the segment carries an id key at all. An explicit
// null still counts: upstream sends it for sentence-level segments.
func (s Segment) HasID() bool {
	return len(s.ID) > 0
}

func (s Segment) content() string {
	if s.Text != "" {
		return CleanText(s.Text)
	}
	return CleanText(s.Texts)
}

// Unit is a quote unit: the smallest searchable snippet of a transcript.
type Unit struct {
	ID       string  `json:"id"`
	VideoID  string  `json:"bvid"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	PrevText string  `json:"prevText"`
	NextText string  `json:"nextText"`
}

// CleanText collapses whitespace runs and trims.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NewID derives the stable quote ID for a snippet of a video.
func NewID(videoID string, start float64, text string) string {
	key := fmt.Sprintf("%s|%d|%s", videoID, int64(math.Round(start*1000)), CleanText(text))
	h := fnv.New32a()
	h.Write([]byte(key))
	return "q_" + strconv.FormatUint(uint64(h.Sum32()), 36)
}

// FromSegments converts raw segments into quote units. When the upstream
// segments carry IDs they are already sentence-level and are kept one to one;
// otherwise consecutive segments are merged until a sentence ends or the
// buffer grows past maxBufferedChars.
func FromSegments(videoID string, segments []Segment) []Unit {
	for _, seg := range segments {
		if seg.HasID() {
			return fromIdentified(videoID, segments)
		}
	}
	return fromStream(videoID, segments)
}

func fromIdentified(videoID string, segments []Segment) []Unit {
	units := make([]Unit, 0, len(segments))
	for _, seg := range segments {
		text := seg.content()
		if text == "" {
			continue
		}
		start := valueOr(seg.Start, 0)
		end := valueOr(seg.End, start)
		units = append(units, Unit{
			ID:      NewID(videoID, start, text),
			VideoID: videoID,
			Start:   start,
			End:     end,
			Text:    text,
		})
	}
	return units
}

func fromStream(videoID string, segments []Segment) []Unit {
	var (
		units    []Unit
		buffer   strings.Builder
		start    float64
		end      float64
		buffered bool
	)
	emit := func() {
		text := CleanText(buffer.String())
		if text != "" {
			units = append(units, Unit{
				ID:      NewID(videoID, start, text),
				VideoID: videoID,
				Start:   start,
				End:     end,
				Text:    text,
			})
		}
		buffer.Reset()
		buffered = false
		start, end = 0, 0
	}

	for _, seg := range segments {
		text := seg.content()
		if text == "" {
			continue
		}
		if !buffered {
			start = valueOr(seg.Start, 0)
			end = start
			buffered = true
		} else {
			buffer.WriteByte(' ')
		}
		switch {
		case seg.End != nil:
			end = *seg.End
		case seg.Start != nil:
			end = *seg.Start
		}
		buffer.WriteString(text)

		if sentenceEnd.MatchString(text) || utf8.RuneCountInString(buffer.String()) > maxBufferedChars {
			emit()
		}
	}
	if buffered {
		emit()
	}
	return units
}

// AttachContext fills PrevText and NextText from neighbouring units. The
// input slice is not modified.
func AttachContext(units []Unit) []Unit {
	out := make([]Unit, len(units))
	for i, u := range units {
		if i > 0 {
			u.PrevText = units[i-1].Text
		}
		if i < len(units)-1 {
			u.NextText = units[i+1].Text
		}
		out[i] = u
	}
	return out
}

// Build is FromSegments followed by AttachContext.
func Build(videoID string, segments []Segment) []Unit {
	return AttachContext(FromSegments(videoID, segments))
}

// ExtractSegments decodes a transcript document. It accepts a bare array or
// an object that nests the array under segments, result.segments or
// data.segments. Unknown shapes decode to an empty list.
func ExtractSegments(data []byte) ([]Segment, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var segments []Segment
		if err := json.Unmarshal(trimmed, &segments); err != nil {
			return nil, fmt.Errorf("decoding segment array: %w", err)
		}
		return segments, nil
	}

	type nested struct {
		Segments []Segment `json:"segments"`
	}
	var doc struct {
		Segments []Segment `json:"segments"`
		Result   *nested   `json:"result"`
		Data     *nested   `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decoding transcript document: %w", err)
	}
	switch {
	case doc.Segments != nil:
		return doc.Segments, nil
	case doc.Result != nil && doc.Result.Segments != nil:
		return doc.Result.Segments, nil
	case doc.Data != nil && doc.Data.Segments != nil:
		return doc.Data.Segments, nil
	}
	return nil, nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
