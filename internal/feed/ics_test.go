// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package feed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/models"
)

var renderClock = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

func testRenderer() *Renderer {
	return NewRenderer(config.FeedConfig{
		CalendarName:    "Nightowl",
		UIDDomain:       "nightowl.live",
		DefaultDuration: 2 * time.Hour,
	}, func() time.Time { return renderClock })
}

func feedEvent() models.CanonicalEvent {
	return models.CanonicalEvent{
		ID:        models.EventID("ticketing", "evt-1"),
		Title:     "Jazz Night; with Friends, live",
		StartDate: time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC),
		Venue:     "The Blue Room",
		Source:    "ticketing",
		SourceID:  "evt-1",
		URL:       "https://tickets.example/evt-1",
		Tags:      []string{"music"},
	}
}

func TestRenderStructure(t *testing.T) {
	out := string(testRenderer().Render([]models.CanonicalEvent{feedEvent()}))

	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"VERSION:2.0\r\n",
		"X-WR-CALNAME:Nightowl\r\n",
		"BEGIN:VEVENT\r\n",
		"UID:" + models.EventID("ticketing", "evt-1").String() + "@nightowl.live\r\n",
		"DTSTAMP:20260401T060000Z\r\n",
		"DTSTART:20260501T200000Z\r\n",
		"DTEND:20260501T220000Z\r\n", // default 2h duration
		"LOCATION:The Blue Room\r\n",
		"CATEGORIES:music\r\n",
		"END:VEVENT\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestRenderEscapesText(t *testing.T) {
	out := string(testRenderer().Render([]models.CanonicalEvent{feedEvent()}))
	if !strings.Contains(out, `SUMMARY:Jazz Night\; with Friends\, live`) {
		t.Errorf("summary not escaped:\n%s", out)
	}
}

func TestRenderUnknownPriceInDescription(t *testing.T) {
	out := string(testRenderer().Render([]models.CanonicalEvent{feedEvent()}))
	if !strings.Contains(out, "DESCRIPTION:Price: Unknown") {
		t.Errorf("missing price line:\n%s", out)
	}
}

func TestRenderUsesExplicitEnd(t *testing.T) {
	e := feedEvent()
	end := e.StartDate.Add(3 * time.Hour)
	e.EndDate = &end
	out := string(testRenderer().Render([]models.CanonicalEvent{e}))
	if !strings.Contains(out, "DTEND:20260501T230000Z\r\n") {
		t.Errorf("explicit end not honored:\n%s", out)
	}
}

func TestRenderSkipsHiddenEvents(t *testing.T) {
	e := feedEvent()
	e.Hidden = true
	out := string(testRenderer().Render([]models.CanonicalEvent{e}))
	if strings.Contains(out, "BEGIN:VEVENT") {
		t.Error("hidden event rendered into the feed")
	}
}

func TestRenderIdempotent(t *testing.T) {
	r := testRenderer()
	events := []models.CanonicalEvent{feedEvent()}
	if !bytes.Equal(r.Render(events), r.Render(events)) {
		t.Error("repeated renders differ")
	}
}

func TestRenderFoldsLongLines(t *testing.T) {
	e := feedEvent()
	e.Description = strings.Repeat("All work and no play makes for a dull calendar entry. ", 5)
	out := testRenderer().Render([]models.CanonicalEvent{e})

	for _, line := range bytes.Split(out, []byte("\r\n")) {
		if len(line) > 75 {
			t.Errorf("unfolded line of %d octets: %q", len(line), line)
		}
	}
	// Folded lines reassemble to the original content line.
	unfolded := strings.ReplaceAll(string(out), "\r\n ", "")
	if !strings.Contains(unfolded, "DESCRIPTION:Price: Unknown\\n"+escapeText(e.Description)) {
		t.Error("folded description does not reassemble")
	}
}

func TestRenderOrdersByStartThenID(t *testing.T) {
	later := feedEvent()
	earlier := models.CanonicalEvent{
		ID:        models.EventID("scrape", "x"),
		Title:     "Early Matinee",
		StartDate: later.StartDate.Add(-24 * time.Hour),
		Source:    "scrape",
		SourceID:  "x",
	}
	out := string(testRenderer().Render([]models.CanonicalEvent{later, earlier}))
	if strings.Index(out, "Early Matinee") > strings.Index(out, "Jazz Night") {
		t.Error("events not ordered by start time")
	}
}
