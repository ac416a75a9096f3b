package feed

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robertmeta/ferment-cli/stress"
)

// Digest is a parsed status digest.
type Digest struct {
	Title   string        `json:"title"`
	Link    string        `json:"link,omitempty"`
	Updated *time.Time    `json:"updated,omitempty"`
	Items   []*DigestItem `json:"items"`
}

// DigestItem is one starter's status as published by a digest.
type DigestItem struct {
	Starter  string       `json:"starter"`
	Label    stress.Label `json:"label"`
	Location string       `json:"location,omitempty"`
	Summary  string       `json:"summary"`
	Link     string       `json:"link,omitempty"`
	GUID     string       `json:"guid"`
	FedAt    *time.Time   `json:"fed_at,omitempty"`
}

// Reader parses digests with gofeed, so any RSS or Atom document whose items
// follow the "<name>: <label>" title convention is accepted.
type Reader struct {
	parser *gofeed.Parser
}

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves and parses a digest from a URL.
func (r *Reader) Fetch(ctx context.Context, url string) (*Digest, error) {
	parsed, err := r.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch digest from %s: %w", url, err)
	}
	return convert(parsed), nil
}

// Read parses a digest from rd.
func (r *Reader) Read(rd io.Reader) (*Digest, error) {
	parsed, err := r.parser.Parse(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest: %w", err)
	}
	return convert(parsed), nil
}

// Parse parses digest content from a string.
func (r *Reader) Parse(content string) (*Digest, error) {
	if content == "" {
		return nil, fmt.Errorf("digest content is empty")
	}
	return r.Read(strings.NewReader(content))
}

func convert(gf *gofeed.Feed) *Digest {
	d := &Digest{
		Title:   gf.Title,
		Link:    gf.Link,
		Updated: gf.UpdatedParsed,
		Items:   make([]*DigestItem, 0, len(gf.Items)),
	}
	for _, item := range gf.Items {
		d.Items = append(d.Items, convertItem(item))
	}
	return d
}

func convertItem(item *gofeed.Item) *DigestItem {
	di := &DigestItem{
		Summary: item.Description,
		Link:    item.Link,
		GUID:    item.GUID,
		FedAt:   item.PublishedParsed,
		Label:   stress.LabelUnknown,
	}

	// Use link as GUID if GUID is missing
	if di.GUID == "" {
		di.GUID = item.Link
	}

	name, label, found := strings.Cut(item.Title, ": ")
	di.Starter = name
	if l, ok := stress.ParseLabel(strings.TrimSpace(label)); found && ok {
		di.Label = l
	}

	// Categories are [label, location].
	if len(item.Categories) > 0 && di.Label == stress.LabelUnknown {
		if l, ok := stress.ParseLabel(item.Categories[0]); ok {
			di.Label = l
		}
	}
	if len(item.Categories) > 1 {
		di.Location = item.Categories[1]
	}
	return di
}
