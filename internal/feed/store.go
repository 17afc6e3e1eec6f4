package feed

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/eduncan911/podcast"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
	// Two or more declarations in a row, as produced by scripts that
	// prepended a header to output that already had one.
	repeatedDeclarations = regexp.MustCompile(`(?:<\?xml\s[^>]*\?>\s*){2,}`)
)

// ChannelMetadata is the fixed channel information used when a feed has to
// be created from scratch.
type ChannelMetadata struct {
	Title       string
	Description string
	Link        string
	Language    string
	Author      string
	OwnerName   string
	OwnerEmail  string
	Category    string
	Explicit    string
	ImageURL    string
	Copyright   string
}

// Store loads feed documents from disk or synthesizes new ones.
type Store struct {
	channel ChannelMetadata
	now     func() time.Time
	logger  *log.Logger
}

// NewStore creates a Store that uses channel for freshly created feeds.
func NewStore(channel ChannelMetadata, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		channel: channel,
		now:     time.Now,
		logger:  logger,
	}
}

// Load returns the feed stored at path. A missing file yields a new feed with
// an empty item list; an unreadable or unparsable file is an error so that a
// good feed is never replaced by a blind rewrite.
func (s *Store) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Printf("feed %s does not exist; creating a new one", path)
			return s.New()
		}
		return nil, fmt.Errorf("read feed %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err == nil {
		return doc, nil
	}

	normalized := Normalize(data)
	if bytes.Equal(normalized, data) {
		return nil, fmt.Errorf("parse feed %s: %w", path, err)
	}
	doc, retryErr := Parse(normalized)
	if retryErr != nil {
		return nil, fmt.Errorf("parse feed %s: %w", path, retryErr)
	}
	s.logger.Printf("feed %s needed normalization before parsing: %v", path, err)
	return doc, nil
}

// New synthesizes an empty feed from the configured channel metadata.
func (s *Store) New() (*Document, error) {
	now := s.now().UTC()
	ch := s.channel

	p := podcast.New(ch.Title, ch.Link, ch.Description, &now, &now)
	p.Generator = "podfeed"
	if ch.Language != "" {
		p.Language = ch.Language
	}
	if ch.Copyright != "" {
		p.Copyright = ch.Copyright
	}
	if ch.Author != "" {
		p.IAuthor = ch.Author
	}
	if ch.OwnerName != "" || ch.OwnerEmail != "" {
		p.IOwner = &podcast.Author{Name: ch.OwnerName, Email: ch.OwnerEmail}
	}
	if ch.Explicit != "" {
		p.IExplicit = ch.Explicit
	}
	if ch.ImageURL != "" {
		p.AddImage(ch.ImageURL)
	}
	if ch.Category != "" {
		p.AddCategory(ch.Category, nil)
	}

	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(p.Bytes()); err != nil {
		return nil, fmt.Errorf("build channel skeleton: %w", err)
	}
	doc, err := newDocument(tree)
	if err != nil {
		return nil, fmt.Errorf("build channel skeleton: %w", err)
	}
	return doc, nil
}

// Parse reads a feed document from raw bytes.
func Parse(data []byte) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	doc, err := newDocument(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	return doc, nil
}

// Normalize repairs known-bad byte patterns: a leading byte order mark,
// whitespace before the declaration and repeated XML declarations.
func Normalize(data []byte) []byte {
	out := bytes.TrimPrefix(data, utf8BOM)
	out = bytes.TrimLeft(out, " \t\r\n")
	out = repeatedDeclarations.ReplaceAllFunc(out, func(match []byte) []byte {
		trailing := ""
		if strings.TrimRight(string(match), " \t\r\n") != string(match) {
			trailing = "\n"
		}
		return []byte(xmlDeclaration + trailing)
	})
	return out
}
