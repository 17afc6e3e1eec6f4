package models

import "time"

// Fallback values used when the real figures cannot be determined. A zero
// length enclosure makes several podcast clients refuse the item.
const (
	FallbackSizeBytes       int64 = 2 * 1024 * 1024
	FallbackDurationSeconds       = 1800
)

// EntryType distinguishes files from directories in a listing.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// SourceEntry is a single item discovered by a source (local directory scan,
// repository listing, inventory file). All I/O has already happened; fields
// that could not be resolved carry their zero value (Size is -1).
type SourceEntry struct {
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	Type            EntryType `json:"type"`
	Size            int64     `json:"size"`
	ModifiedAt      time.Time `json:"modified_at"`
	URL             string    `json:"url,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	TagTitle        string    `json:"tag_title,omitempty"`
	Explicit        *bool     `json:"explicit,omitempty"`
}

// EpisodeRecord is the normalized description of one audio episode.
type EpisodeRecord struct {
	Title           string    `json:"title"`
	Filename        string    `json:"filename"`
	EpisodeNumber   string    `json:"episode_number,omitempty"`
	PublishDate     time.Time `json:"publish_date"`
	FileSizeBytes   int64     `json:"file_size_bytes"`
	SizeKnown       bool      `json:"size_known"`
	DurationSeconds int       `json:"duration_seconds"`
	DurationKnown   bool      `json:"duration_known"`
	SourceURL       string    `json:"source_url"`
	StableID        string    `json:"stable_id"`
	Explicit        *bool     `json:"explicit,omitempty"`
}
