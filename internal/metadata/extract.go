package metadata

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"podfeed/internal/models"
)

// IDMode selects how the stable identifier of an episode is derived.
type IDMode string

const (
	IDFromURL      IDMode = "url"
	IDFromFilename IDMode = "filename"
	IDFromUUID     IDMode = "uuid"
)

// Options tunes Extract. The zero value derives identifiers from the source URL.
type Options struct {
	IDMode         IDMode
	PreferTagTitle bool
}

// datedName matches YYYY-MM-DD_<title>_<numeric-id>.mp3.
var datedName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(.+)_(\d+)\.(?i:mp3)$`)

var quoteReplacer = strings.NewReplacer(`"`, "", "“", "", "”", "", "_", " ")

// IsAudio reports whether the name carries the .mp3 extension.
func IsAudio(name string) bool {
	return strings.EqualFold(path.Ext(name), ".mp3")
}

// Extract turns a resolved source entry into an episode record. It is a pure
// function of its input. The boolean is false when the entry is not audio
// content and should be skipped.
func Extract(entry models.SourceEntry, opts Options) (models.EpisodeRecord, bool) {
	if entry.Type == models.EntryDir {
		return models.EpisodeRecord{}, false
	}

	name := entry.Name
	if name == "" {
		name = path.Base(entry.Path)
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if !IsAudio(name) {
		return models.EpisodeRecord{}, false
	}

	record := models.EpisodeRecord{
		Filename:  name,
		SourceURL: strings.TrimSpace(entry.URL),
		Explicit:  entry.Explicit,
	}

	title, published, number, ok := parseDatedName(name)
	if ok {
		record.Title = title
		record.PublishDate = published
		record.EpisodeNumber = number
	} else {
		record.Title = cleanTitle(strings.TrimSuffix(name, path.Ext(name)))
		if opts.PreferTagTitle {
			if tagged := cleanTitle(entry.TagTitle); tagged != "" {
				record.Title = tagged
			}
		}
		record.PublishDate = fallbackDate(entry.ModifiedAt)
	}
	if record.Title == "" {
		record.Title = strings.TrimSuffix(name, path.Ext(name))
	}

	if entry.Size > 0 {
		record.FileSizeBytes = entry.Size
		record.SizeKnown = true
	} else {
		record.FileSizeBytes = models.FallbackSizeBytes
	}

	if entry.DurationSeconds > 0 {
		record.DurationSeconds = entry.DurationSeconds
		record.DurationKnown = true
	} else {
		record.DurationSeconds = models.FallbackDurationSeconds
	}

	record.StableID = stableID(entry, name, record.SourceURL, opts.IDMode)
	return record, true
}

func parseDatedName(name string) (string, time.Time, string, bool) {
	match := datedName.FindStringSubmatch(name)
	if match == nil {
		return "", time.Time{}, "", false
	}
	published, err := time.ParseInLocation("2006-01-02", match[1], time.UTC)
	if err != nil {
		return "", time.Time{}, "", false
	}
	title := cleanTitle(match[2])
	if title == "" {
		return "", time.Time{}, "", false
	}
	return title, published, match[3], true
}

func cleanTitle(raw string) string {
	title := quoteReplacer.Replace(norm.NFC.String(raw))
	return strings.Join(strings.Fields(title), " ")
}

func fallbackDate(modified time.Time) time.Time {
	if modified.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return modified.UTC()
}

func stableID(entry models.SourceEntry, name, sourceURL string, mode IDMode) string {
	key := entry.Path
	if key == "" {
		key = name
	}
	key = norm.NFC.String(key)

	switch mode {
	case IDFromFilename:
		return key
	case IDFromUUID:
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
	default:
		if sourceURL != "" {
			return sourceURL
		}
		return key
	}
}
