package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

// CommandType names an inbound command.
type CommandType string

const (
	CommandInit          CommandType = "init"
	CommandSearch        CommandType = "search"
	CommandGetTranscript CommandType = "getTranscript"
)

// Command is one inbound message. Its JSON form is
// {"type": "...", "manifest": [...], "query": "...", "bvid": "..."}.
type Command struct {
	Type     CommandType    `json:"type"`
	Manifest []source.Video `json:"manifest,omitempty"`
	Query    string         `json:"query,omitempty"`
	VideoID  string         `json:"bvid,omitempty"`

	results    chan []ranker.Result
	transcript chan []quote.Unit
}

// InitCommand replaces the active manifest.
func InitCommand(manifest []source.Video) Command {
	return Command{Type: CommandInit, Manifest: manifest}
}

// SearchCommand ranks query against the active index.
func SearchCommand(query string) Command {
	return Command{Type: CommandSearch, Query: query}
}

// TranscriptCommand asks for the quote list of one video.
func TranscriptCommand(videoID string) Command {
	return Command{Type: CommandGetTranscript, VideoID: videoID}
}

// UnmarshalJSON decodes a command, accepting the same manifest shapes as
// source.ParseManifest.
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     CommandType     `json:"type"`
		Manifest json.RawMessage `json:"manifest"`
		Query    string          `json:"query"`
		VideoID  string          `json:"bvid"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Command{Type: raw.Type, Query: raw.Query, VideoID: raw.VideoID}
	if len(raw.Manifest) > 0 {
		manifest, err := source.ParseManifest(raw.Manifest)
		if err != nil {
			return err
		}
		c.Manifest = manifest
	}
	return nil
}

// Validate rejects commands the coordinator would have to ignore.
func (c Command) Validate() error {
	switch c.Type {
	case CommandInit, CommandSearch:
		return nil
	case CommandGetTranscript:
		if c.VideoID == "" {
			return fmt.Errorf("getTranscript without bvid: %w", apperrors.ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("unknown command type %q: %w", c.Type, apperrors.ErrInvalidInput)
	}
}

// EventType names an outbound event.
type EventType string

const (
	EventProgress   EventType = "progress"
	EventReady      EventType = "ready"
	EventResults    EventType = "results"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
)

// Progress reports one processed video, or a synthetic loaded=total on a
// cache restore.
type Progress struct {
	Loaded  int    `json:"loaded"`
	Total   int    `json:"total"`
	VideoID string `json:"bvid,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
}

// Ready reports a finished index generation.
type Ready struct {
	TotalVideos int  `json:"totalVideos"`
	TotalQuotes int  `json:"totalQuotes"`
	Cached      bool `json:"cached,omitempty"`
}

// Results answers a search command.
type Results struct {
	Query   string          `json:"query"`
	Results []ranker.Result `json:"results"`
}

// Transcript answers a getTranscript command.
type Transcript struct {
	VideoID string       `json:"bvid"`
	Quotes  []quote.Unit `json:"quotes"`
}

// Failure reports a non-fatal error, usually one video's transcript.
type Failure struct {
	Message string `json:"message"`
	VideoID string `json:"bvid,omitempty"`
}

// Event is one outbound message. Exactly one payload matches Type.
type Event struct {
	Type       EventType
	Progress   *Progress
	Ready      *Ready
	Results    *Results
	Transcript *Transcript
	Error      *Failure
}

func (e Event) payload() any {
	switch e.Type {
	case EventProgress:
		return e.Progress
	case EventReady:
		return e.Ready
	case EventResults:
		return e.Results
	case EventTranscript:
		return e.Transcript
	case EventError:
		return e.Error
	default:
		return nil
	}
}

// MarshalJSON flattens the payload next to the type field.
func (e Event) MarshalJSON() ([]byte, error) {
	p := e.payload()
	typeField, err := json.Marshal(map[string]EventType{"type": e.Type})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return typeField, nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte("{}")) {
		return typeField, nil
	}
	out := make([]byte, 0, len(typeField)+len(body))
	out = append(out, typeField[:len(typeField)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*e = Event{Type: head.Type}
	var target any
	switch head.Type {
	case EventProgress:
		e.Progress = &Progress{}
		target = e.Progress
	case EventReady:
		e.Ready = &Ready{}
		target = e.Ready
	case EventResults:
		e.Results = &Results{}
		target = e.Results
	case EventTranscript:
		e.Transcript = &Transcript{}
		target = e.Transcript
	case EventError:
		e.Error = &Failure{}
		target = e.Error
	default:
		return fmt.Errorf("unknown event type %q", head.Type)
	}
	return json.Unmarshal(data, target)
}

func progressEvent(p Progress) Event { return Event{Type: EventProgress, Progress: &p} }
func readyEvent(r Ready) Event       { return Event{Type: EventReady, Ready: &r} }
func errorEvent(f Failure) Event     { return Event{Type: EventError, Error: &f} }

func resultsEvent(query string, results []ranker.Result) Event {
	return Event{Type: EventResults, Results: &Results{Query: query, Results: results}}
}

func transcriptEvent(videoID string, quotes []quote.Unit) Event {
	if quotes == nil {
		quotes = []quote.Unit{}
	}
	return Event{Type: EventTranscript, Transcript: &Transcript{VideoID: videoID, Quotes: quotes}}
}
