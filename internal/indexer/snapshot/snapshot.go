// Package snapshot persists built index generations keyed by a fingerprint
// of the manifest they were built from, so an unchanged manifest can be
// restored without refetching transcripts.
package snapshot

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
)

// SchemaVersion is bumped whenever the index layout changes. It is part of
// both the fingerprint and the encoded snapshot.
const SchemaVersion = 1

// Snapshot is one persisted index generation.
type Snapshot struct {
	Version     int
	SavedAt     time.Time
	Key         string
	TotalVideos int
	TotalQuotes int
	Entries     []*index.Entry
	// Quotes holds the per-video transcript cache, keyed by video id.
	Quotes map[string][]quote.Unit
	Model  index.RankModel
}

type signature struct {
	VideoID    string `json:"bvid"`
	Author     string `json:"author"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	Transcript string `json:"transcript"`
	CoverURL   string `json:"coverUrl"`
}

// Fingerprint derives the cache key of a manifest. Any change to a video's
// id, author, title, date, transcript locator or cover, to the order of the
// videos, or to SchemaVersion produces a different key.
func Fingerprint(videos []source.Video) string {
	sig := make([]signature, len(videos))
	for i, v := range videos {
		sig[i] = signature{
			VideoID:    v.VideoID,
			Author:     v.Author,
			Title:      v.Title,
			Date:       v.Date,
			Transcript: v.Transcript,
			CoverURL:   v.CoverURL,
		}
	}
	// Marshalling a slice of flat string structs cannot fail.
	data, _ := json.Marshal(sig)
	h := fnv.New32a()
	h.Write(data)
	return "v" + strconv.Itoa(SchemaVersion) + ":" + strconv.Itoa(len(videos)) + ":" +
		strconv.FormatUint(uint64(h.Sum32()), 36)
}
