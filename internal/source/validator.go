package source

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxManifestVideos = 100000
	maxVideoIDLength  = 256
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateManifest checks that every video has a usable id and that ids are
// unique, returning a ValidationError keyed by "videos[i].bvid" otherwise.
func ValidateManifest(videos []Video) error {
	errs := make(map[string]string)
	if len(videos) > maxManifestVideos {
		errs["videos"] = fmt.Sprintf("manifest must hold at most %d videos", maxManifestVideos)
	}
	seen := make(map[string]int, len(videos))
	for i, v := range videos {
		field := fmt.Sprintf("videos[%d].bvid", i)
		id := strings.TrimSpace(v.VideoID)
		switch {
		case id == "":
			errs[field] = "bvid is required"
		case len(id) > maxVideoIDLength:
			errs[field] = fmt.Sprintf("bvid must be at most %d characters", maxVideoIDLength)
		default:
			if first, dup := seen[id]; dup {
				errs[field] = fmt.Sprintf("duplicate of videos[%d]", first)
			} else {
				seen[id] = i
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
