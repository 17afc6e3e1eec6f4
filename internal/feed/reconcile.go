package feed

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"podfeed/internal/models"
)

// DurationFormat selects how itunes:duration is rendered.
type DurationFormat string

const (
	DurationHMS     DurationFormat = "hms"
	DurationSeconds DurationFormat = "seconds"
)

// ItemSettings controls how episode records are rendered into <item> elements.
type ItemSettings struct {
	DescriptionSuffix string
	Author            string
	// PubDateOffset is a fixed numeric zone such as "+0000" or "+0900".
	PubDateOffset   string
	DurationFormat  DurationFormat
	GUIDIsPermaLink bool
	Explicit        bool
}

// SkippedEpisode describes a record that was left out of the feed.
type SkippedEpisode struct {
	Filename string
	StableID string
	Reason   string
}

// Report summarizes a reconciliation pass.
type Report struct {
	Removed int
	Written int
	Skipped []SkippedEpisode
}

// Reconciler replaces the items of a feed with freshly built ones.
type Reconciler struct {
	settings ItemSettings
	zone     *time.Location
	now      func() time.Time
	logger   *log.Logger
}

// NewReconciler validates settings and returns a Reconciler.
func NewReconciler(settings ItemSettings, logger *log.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = log.Default()
	}
	zone, err := ParseOffset(settings.PubDateOffset)
	if err != nil {
		return nil, err
	}
	switch settings.DurationFormat {
	case "":
		settings.DurationFormat = DurationHMS
	case DurationHMS, DurationSeconds:
	default:
		return nil, fmt.Errorf("unknown duration format %q", settings.DurationFormat)
	}
	return &Reconciler{
		settings: settings,
		zone:     zone,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// SetClock overrides the clock used for lastBuildDate.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Reconcile removes every existing item and appends one item per episode in
// canonical order. Channel metadata is left alone apart from lastBuildDate.
func (r *Reconciler) Reconcile(doc *Document, episodes []models.EpisodeRecord) Report {
	var report Report
	channel := doc.Channel()

	for _, item := range channel.SelectElements("item") {
		channel.RemoveChild(item)
		report.Removed++
	}

	lastBuild := channel.SelectElement("lastBuildDate")
	if lastBuild == nil {
		lastBuild = channel.CreateElement("lastBuildDate")
	}
	lastBuild.SetText(r.formatDate(r.now()))

	for _, ep := range SortEpisodes(episodes) {
		if strings.TrimSpace(ep.SourceURL) == "" {
			r.logger.Printf("warning: skipping episode %q (%s): no source url", ep.Title, ep.Filename)
			report.Skipped = append(report.Skipped, SkippedEpisode{
				Filename: ep.Filename,
				StableID: ep.StableID,
				Reason:   "missing source url",
			})
			continue
		}
		r.appendItem(doc, ep)
		report.Written++
	}

	return report
}

func (r *Reconciler) appendItem(doc *Document, ep models.EpisodeRecord) {
	item := doc.Channel().CreateElement("item")

	item.CreateElement("title").SetText(ep.Title)
	item.CreateElement("description").SetText(r.description(ep.Title))
	item.CreateElement("link").SetText(ep.SourceURL)
	item.CreateElement("pubDate").SetText(r.formatDate(ep.PublishDate))

	guid := item.CreateElement("guid")
	guid.CreateAttr("isPermaLink", strconv.FormatBool(r.settings.GUIDIsPermaLink))
	guid.SetText(ep.StableID)

	enclosure := item.CreateElement("enclosure")
	enclosure.CreateAttr("url", ep.SourceURL)
	enclosure.CreateAttr("length", strconv.FormatInt(ep.FileSizeBytes, 10))
	enclosure.CreateAttr("type", "audio/mpeg")

	item.CreateElement("itunes:duration").SetText(r.formatDuration(ep.DurationSeconds))

	explicit := r.settings.Explicit
	if ep.Explicit != nil {
		explicit = *ep.Explicit
	}
	item.CreateElement("itunes:explicit").SetText(yesNo(explicit))
	item.CreateElement("itunes:author").SetText(r.settings.Author)
}

func (r *Reconciler) description(title string) string {
	suffix := strings.TrimSpace(r.settings.DescriptionSuffix)
	if suffix == "" {
		return title
	}
	return title + " - " + suffix
}

func (r *Reconciler) formatDate(t time.Time) string {
	return t.In(r.zone).Format(time.RFC1123Z)
}

func (r *Reconciler) formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if r.settings.DurationFormat == DurationSeconds {
		return strconv.Itoa(seconds)
	}
	return FormatHMS(seconds)
}

// FormatHMS renders seconds as HH:MM:SS.
func FormatHMS(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// ParseOffset turns "+0900" style offsets into a fixed zone. Empty means UTC.
func ParseOffset(offset string) (*time.Location, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" {
		return time.UTC, nil
	}
	ref, err := time.Parse("-0700", offset)
	if err != nil {
		return nil, fmt.Errorf("invalid pubDate offset %q: %w", offset, err)
	}
	_, seconds := ref.Zone()
	return time.FixedZone("", seconds), nil
}

// SortEpisodes returns a copy ordered by publish date, newest first. Equal
// dates are ordered by stable identifier, descending.
func SortEpisodes(episodes []models.EpisodeRecord) []models.EpisodeRecord {
	sorted := make([]models.EpisodeRecord, len(episodes))
	copy(sorted, episodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PublishDate.Equal(sorted[j].PublishDate) {
			return sorted[i].StableID > sorted[j].StableID
		}
		return sorted[i].PublishDate.After(sorted[j].PublishDate)
	})
	return sorted
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
