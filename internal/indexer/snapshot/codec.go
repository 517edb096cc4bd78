package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

// Codec turns snapshots into blobs and back.
type Codec interface {
	Encode(s *Snapshot) ([]byte, error)
	Decode(data []byte) (*Snapshot, error)
}

// Wire form. Maps and sets travel as sorted lists so equal snapshots encode
// to equal bytes.
type wireSnapshot struct {
	Version     int          `json:"version"`
	SavedAt     int64        `json:"savedAt"`
	Key         string       `json:"key"`
	TotalVideos int          `json:"totalVideos"`
	TotalQuotes int          `json:"totalQuotes"`
	Entries     []wireEntry  `json:"entries"`
	Quotes      []wireQuotes `json:"quotes"`
	Model       wireModel    `json:"model"`
}

type wireEntry struct {
	index.Entry
	Fields [3]wireField `json:"fields"`
	Tokens []string     `json:"tokens"`
	Vector []float32    `json:"vector"`
}

type wireField struct {
	Normalized string     `json:"n"`
	Compact    string     `json:"c"`
	Length     int        `json:"l"`
	TF         []wireTerm `json:"tf"`
}

type wireTerm struct {
	Term  string `json:"t"`
	Count int    `json:"f"`
}

type wireQuotes struct {
	VideoID string       `json:"bvid"`
	Quotes  []quote.Unit `json:"quotes"`
}

type wireModel struct {
	IDF            []wireWeight       `json:"idf"`
	AvgFieldLength index.FieldLengths `json:"avgFieldLength"`
	TotalDocs      int                `json:"totalDocs"`
}

type wireWeight struct {
	Term  string  `json:"t"`
	Value float64 `json:"v"`
}

// ZstdJSONCodec encodes snapshots as zstd-compressed JSON. It is safe for
// concurrent use.
type ZstdJSONCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec returns the default snapshot codec.
func NewCodec() (*ZstdJSONCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &ZstdJSONCodec{encoder: enc, decoder: dec}, nil
}

// Encode implements Codec.
func (c *ZstdJSONCodec) Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encoding snapshot: %w", apperrors.ErrInvalidInput)
	}
	raw, err := json.Marshal(toWire(s))
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode implements Codec. Blobs of another schema version, or without an
// entry list, are rejected with ErrSnapshotInvalid.
func (c *ZstdJSONCodec) Decode(data []byte) (*Snapshot, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w: %v", apperrors.ErrSnapshotInvalid, err)
	}
	var w wireSnapshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w: %v", apperrors.ErrSnapshotInvalid, err)
	}
	if w.Version != SchemaVersion {
		return nil, fmt.Errorf("snapshot schema %d, want %d: %w", w.Version, SchemaVersion, apperrors.ErrSnapshotInvalid)
	}
	if w.Entries == nil {
		return nil, fmt.Errorf("snapshot has no entry list: %w", apperrors.ErrSnapshotInvalid)
	}
	return fromWire(&w), nil
}

// Close releases the codec's compression state.
func (c *ZstdJSONCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

func toWire(s *Snapshot) *wireSnapshot {
	w := &wireSnapshot{
		Version:     s.Version,
		SavedAt:     s.SavedAt.UnixMilli(),
		Key:         s.Key,
		TotalVideos: s.TotalVideos,
		TotalQuotes: s.TotalQuotes,
		Quotes:      make([]wireQuotes, 0, len(s.Quotes)),
		Model: wireModel{
			IDF:            make([]wireWeight, 0, len(s.Model.IDF)),
			AvgFieldLength: s.Model.AvgFieldLength,
			TotalDocs:      s.Model.TotalDocs,
		},
	}
	if s.Entries != nil {
		w.Entries = make([]wireEntry, len(s.Entries))
	}
	for i, e := range s.Entries {
		we := wireEntry{
			Entry:  *e,
			Tokens: sortedKeys(e.Search.UniqueTokens),
			Vector: e.Search.Vector,
		}
		for _, f := range index.Fields {
			stats := e.Search.Field(f)
			terms := make([]wireTerm, 0, len(stats.TF))
			for _, term := range sortedKeys(stats.TF) {
				terms = append(terms, wireTerm{Term: term, Count: stats.TF[term]})
			}
			we.Fields[f] = wireField{
				Normalized: stats.Normalized,
				Compact:    stats.Compact,
				Length:     stats.Length,
				TF:         terms,
			}
		}
		w.Entries[i] = we
	}
	for _, id := range sortedKeys(s.Quotes) {
		w.Quotes = append(w.Quotes, wireQuotes{VideoID: id, Quotes: s.Quotes[id]})
	}
	for _, term := range sortedKeys(s.Model.IDF) {
		w.Model.IDF = append(w.Model.IDF, wireWeight{Term: term, Value: s.Model.IDF[term]})
	}
	return w
}

func fromWire(w *wireSnapshot) *Snapshot {
	s := &Snapshot{
		Version:     w.Version,
		SavedAt:     time.UnixMilli(w.SavedAt).UTC(),
		Key:         w.Key,
		TotalVideos: w.TotalVideos,
		TotalQuotes: w.TotalQuotes,
		Entries:     make([]*index.Entry, len(w.Entries)),
		Quotes:      make(map[string][]quote.Unit, len(w.Quotes)),
		Model: index.RankModel{
			IDF:            make(map[string]float64, len(w.Model.IDF)),
			AvgFieldLength: w.Model.AvgFieldLength,
			TotalDocs:      w.Model.TotalDocs,
		},
	}
	for i := range w.Entries {
		we := &w.Entries[i]
		e := we.Entry
		e.Search = index.Projection{
			UniqueTokens: make(map[string]struct{}, len(we.Tokens)),
			Vector:       we.Vector,
		}
		for _, token := range we.Tokens {
			e.Search.UniqueTokens[token] = struct{}{}
		}
		for _, f := range index.Fields {
			wf := we.Fields[f]
			tf := make(map[string]int, len(wf.TF))
			for _, t := range wf.TF {
				if t.Count > 0 {
					tf[t.Term] = t.Count
				}
			}
			*e.Search.Field(f) = index.FieldStats{
				Normalized: wf.Normalized,
				Compact:    wf.Compact,
				TF:         tf,
				Length:     wf.Length,
			}
		}
		s.Entries[i] = &e
	}
	for _, q := range w.Quotes {
		s.Quotes[q.VideoID] = q.Quotes
	}
	for _, weight := range w.Model.IDF {
		s.Model.IDF[weight.Term] = weight.Value
	}
	return s
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
