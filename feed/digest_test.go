package feed

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func statuses() []model.StarterStatus {
	fridge := model.LocationFridge
	levain := &model.Starter{
		ID:            1,
		UID:           "uid-levain",
		Name:          "Levain",
		IntervalHours: 16,
		LastFedAt:     t0.Format(time.RFC3339),
		Location:      model.LocationFridge,
		FedLocation:   model.LocationCounter,
	}
	scoby := &model.Starter{
		ID:            2,
		UID:           "uid-scoby",
		Name:          "Scoby",
		IntervalHours: 168,
		LastFedAt:     "not-a-date",
		Location:      "cellar",
	}
	now := t0.Add(32 * time.Hour)
	events := []*model.Event{{Kind: model.EventMove, OccurredAt: t0.Add(8 * time.Hour), NewLocation: &fridge}}

	return []model.StarterStatus{
		model.Evaluate(stress.DefaultModel, levain, events, now),
		model.Evaluate(stress.DefaultModel, scoby, nil, now),
	}
}

func TestGenerateDigest(t *testing.T) {
	var buf bytes.Buffer
	err := GenerateDigest(&buf, Meta{Title: "Home", Link: "http://localhost:8080/"}, statuses(), t0.Add(32*time.Hour))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `<rss version="2.0">`)
	assert.Contains(t, out, "<title>Levain: needs_feed</title>")
	assert.Contains(t, out, "<link>http://localhost:8080/api/v1/starters/1</link>")
	assert.Contains(t, out, `<guid isPermaLink="false">uid-levain@2024-03-01T08:00:00Z</guid>`)
	assert.Contains(t, out, "<pubDate>Fri, 01 Mar 2024 08:00:00 +0000</pubDate>")
	assert.Contains(t, out, "Scoby in cellar: status unknown")
}

func TestDigest_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GenerateDigest(&buf, Meta{}, statuses(), t0.Add(32*time.Hour)))

	d, err := NewReader().Parse(buf.String())
	require.NoError(t, err)

	assert.Equal(t, "ferment-cli status", d.Title)
	require.NotNil(t, d.Updated)
	assert.True(t, t0.Add(32*time.Hour).Equal(*d.Updated))
	require.Len(t, d.Items, 2)

	assert.Equal(t, "Levain", d.Items[0].Starter)
	assert.Equal(t, stress.LabelNeedsFeed, d.Items[0].Label)
	assert.Equal(t, "fridge", d.Items[0].Location)
	assert.Equal(t, "uid-levain@2024-03-01T08:00:00Z", d.Items[0].GUID)
	require.NotNil(t, d.Items[0].FedAt)
	assert.True(t, t0.Equal(*d.Items[0].FedAt))

	assert.Equal(t, "Scoby", d.Items[1].Starter)
	assert.Equal(t, stress.LabelUnknown, d.Items[1].Label)
	assert.Nil(t, d.Items[1].FedAt, "no pubDate for an unparseable feed time")
}

func TestReader_ParseFixture(t *testing.T) {
	data, err := os.ReadFile("testdata/digest.xml")
	require.NoError(t, err)

	d, err := NewReader().Parse(string(data))
	require.NoError(t, err)

	assert.Equal(t, "Bakery starters", d.Title)
	require.Len(t, d.Items, 3, "Should parse 3 items from the digest")

	assert.Equal(t, "Levain", d.Items[0].Starter)
	assert.Equal(t, stress.LabelNeedsFeed, d.Items[0].Label)
	assert.Equal(t, "https://bakery.example.com/api/v1/starters/1", d.Items[0].Link)

	assert.Equal(t, "Rye", d.Items[1].Starter)
	assert.Equal(t, stress.LabelHappy, d.Items[1].Label)
	assert.Equal(t, "counter", d.Items[1].Location)

	// Without a label in the title the first category is used.
	assert.Equal(t, "Scoby", d.Items[2].Starter)
	assert.Equal(t, stress.LabelUnknown, d.Items[2].Label)
	assert.Equal(t, "cellar", d.Items[2].Location)
	assert.Equal(t, "https://bakery.example.com/api/v1/starters/3", d.Items[2].GUID, "link stands in for a missing guid")
}

func TestReader_ParseAtom(t *testing.T) {
	atom := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom starters</title>
  <id>urn:example:starters</id>
  <updated>2024-03-02T12:00:00Z</updated>
  <entry>
    <title>Kombucha: due_soon</title>
    <id>urn:example:kombucha</id>
    <updated>2024-03-02T12:00:00Z</updated>
    <summary>Kombucha in counter</summary>
  </entry>
</feed>`

	d, err := NewReader().Parse(atom)
	require.NoError(t, err)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "Kombucha", d.Items[0].Starter)
	assert.Equal(t, stress.LabelDueSoon, d.Items[0].Label)
	assert.Equal(t, "urn:example:kombucha", d.Items[0].GUID)
}

func TestReader_ParseInvalid(t *testing.T) {
	r := NewReader()

	_, err := r.Parse("<invalid>xml</broken>")
	assert.Error(t, err, "Should error on invalid XML")

	_, err = r.Parse("")
	assert.Error(t, err, "Should error on empty string")
}
