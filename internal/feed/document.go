package feed

import (
	"errors"

	"github.com/beevik/etree"
)

const (
	ITunesNS  = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	ContentNS = "http://purl.org/rss/1.0/modules/content/"
)

// ErrMalformedFeed is returned when an existing feed cannot be parsed even
// after normalization, or does not have an rss/channel structure.
var ErrMalformedFeed = errors.New("malformed feed document")

// Document is a podcast feed held as an element tree. Channel children the
// tool does not know about are kept verbatim so that hand edits survive.
type Document struct {
	tree *etree.Document
}

func newDocument(tree *etree.Document) (*Document, error) {
	root := tree.Root()
	if root == nil || root.Tag != "rss" {
		return nil, errors.New("root element is not <rss>")
	}
	if root.SelectElement("channel") == nil {
		return nil, errors.New("missing <channel> element")
	}
	ensureNamespaces(root)
	return &Document{tree: tree}, nil
}

func ensureNamespaces(root *etree.Element) {
	if root.SelectAttr("version") == nil {
		root.CreateAttr("version", "2.0")
	}
	if root.SelectAttr("xmlns:itunes") == nil {
		root.CreateAttr("xmlns:itunes", ITunesNS)
	}
	if root.SelectAttr("xmlns:content") == nil {
		root.CreateAttr("xmlns:content", ContentNS)
	}
}

// Channel returns the <channel> element.
func (d *Document) Channel() *etree.Element {
	return d.tree.Root().SelectElement("channel")
}

// ChannelText returns the text of a direct channel child, or "" when absent.
func (d *Document) ChannelText(tag string) string {
	el := d.Channel().SelectElement(tag)
	if el == nil {
		return ""
	}
	return el.Text()
}

// Items returns the current <item> elements in document order.
func (d *Document) Items() []*etree.Element {
	return d.Channel().SelectElements("item")
}
