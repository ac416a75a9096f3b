// Package feed publishes starter statuses as an RSS 2.0 digest and reads such
// digests back.
package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
)

// RSS represents the root RSS 2.0 structure.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel holds digest metadata and one item per starter.
type Channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	LastBuildDate string `xml:"lastBuildDate,omitempty"`
	Items         []Item `xml:"item"`
}

// Item is a single starter status.
type Item struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link,omitempty"`
	Description string   `xml:"description"`
	Category    []string `xml:"category"`
	GUID        GUID     `xml:"guid"`
	PubDate     string   `xml:"pubDate,omitempty"`
}

// GUID is an RSS guid element.
type GUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Meta describes the digest channel.
type Meta struct {
	Title string
	Link  string
}

// GenerateDigest writes an RSS 2.0 digest with one item per status. The item
// GUID changes with every feed so readers see a fresh item after each one.
func GenerateDigest(w io.Writer, meta Meta, statuses []model.StarterStatus, now time.Time) error {
	title := meta.Title
	if title == "" {
		title = "ferment-cli status"
	}

	rss := RSS{
		Version: "2.0",
		Channel: Channel{
			Title:         title,
			Link:          meta.Link,
			Description:   fmt.Sprintf("Feeding status of %d starters", len(statuses)),
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
			Items:         make([]Item, 0, len(statuses)),
		},
	}

	for _, ss := range statuses {
		rss.Channel.Items = append(rss.Channel.Items, digestItem(meta, ss))
	}

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(rss); err != nil {
		return fmt.Errorf("failed to encode digest: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

func digestItem(meta Meta, ss model.StarterStatus) Item {
	st := ss.Starter
	item := Item{
		Title:       fmt.Sprintf("%s: %s", st.Name, ss.Status.Label),
		Description: describe(ss),
		Category:    []string{string(ss.Status.Label), string(st.Location)},
		GUID:        GUID{IsPermaLink: "false", Value: st.UID + "@" + st.LastFedAt},
	}
	if meta.Link != "" {
		item.Link = strings.TrimRight(meta.Link, "/") + "/api/v1/starters/" + fmt.Sprint(st.ID)
	}
	if fedAt, ok := stress.ParseFedAt(st.LastFedAt); ok {
		item.PubDate = fedAt.UTC().Format(time.RFC1123Z)
	}
	return item
}

func describe(ss model.StarterStatus) string {
	if ss.Status.Label == stress.LabelUnknown {
		return fmt.Sprintf("%s in %s: status unknown", ss.Starter.Name, ss.Starter.Location)
	}
	return fmt.Sprintf("%s in %s: %.1f of %.1f stress hours (%.0f%%), %.1f hours since last feed",
		ss.Starter.Name, ss.Starter.Location,
		ss.Status.Stress, ss.Starter.IntervalHours, ss.Status.Ratio*100, ss.Status.Hours)
}
