// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package feed renders visible events as an RFC 5545 iCalendar document.
//
// UIDs are derived from the stable event id so subscribing calendar
// clients see updates to an event rather than a delete-and-recreate.
// Rendering identical input at the same instant yields byte-identical
// output.
package feed

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/models"
)

const (
	icsTimeLayout = "20060102T150405Z"

	// maxLineOctets is the RFC 5545 content-line limit before folding.
	maxLineOctets = 75
)

// Renderer produces iCalendar documents from canonical events.
type Renderer struct {
	cfg config.FeedConfig

	// now stamps DTSTAMP; injectable for tests.
	now func() time.Time
}

// NewRenderer creates a Renderer. A nil now falls back to time.Now.
func NewRenderer(cfg config.FeedConfig, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{cfg: cfg, now: now}
}

// Render emits a complete VCALENDAR for the given events. Hidden events
// are skipped. Events are ordered by start time then id so repeated
// renders of the same catalog are byte-identical apart from DTSTAMP.
func (r *Renderer) Render(events []models.CanonicalEvent) []byte {
	visible := make([]models.CanonicalEvent, 0, len(events))
	for _, e := range events {
		if e.Visible() {
			visible = append(visible, e)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		if !visible[i].StartDate.Equal(visible[j].StartDate) {
			return visible[i].StartDate.Before(visible[j].StartDate)
		}
		return visible[i].ID.String() < visible[j].ID.String()
	})

	stamp := r.now().UTC().Format(icsTimeLayout)

	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:-//Nightowl//Event Feed//EN")
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "METHOD:PUBLISH")
	writeLine(&b, "X-WR-CALNAME:"+escapeText(r.cfg.CalendarName))

	for i := range visible {
		r.writeEvent(&b, &visible[i], stamp)
	}

	writeLine(&b, "END:VCALENDAR")
	return []byte(b.String())
}

func (r *Renderer) writeEvent(b *strings.Builder, e *models.CanonicalEvent, stamp string) {
	writeLine(b, "BEGIN:VEVENT")
	writeLine(b, "UID:"+e.ID.String()+"@"+r.cfg.UIDDomain)
	writeLine(b, "DTSTAMP:"+stamp)
	writeLine(b, "DTSTART:"+e.StartDate.UTC().Format(icsTimeLayout))

	end := e.StartDate.Add(r.cfg.DefaultDuration)
	if e.EndDate != nil {
		end = *e.EndDate
	}
	writeLine(b, "DTEND:"+end.UTC().Format(icsTimeLayout))

	writeLine(b, "SUMMARY:"+escapeText(e.Title))
	if e.Venue != "" {
		writeLine(b, "LOCATION:"+escapeText(e.Venue))
	}
	if desc := descriptionFor(e); desc != "" {
		writeLine(b, "DESCRIPTION:"+escapeText(desc))
	}
	if e.URL != "" {
		writeLine(b, "URL:"+e.URL)
	}
	if e.Latitude != nil && e.Longitude != nil {
		writeLine(b, "GEO:"+formatGeo(*e.Latitude)+";"+formatGeo(*e.Longitude))
	}
	if len(e.Tags) > 0 {
		cats := make([]string, len(e.Tags))
		for i, t := range e.Tags {
			cats[i] = escapeText(t)
		}
		writeLine(b, "CATEGORIES:"+strings.Join(cats, ","))
	}
	writeLine(b, "END:VEVENT")
}

// descriptionFor prepends the price line so calendar clients with no
// custom-field support still show it.
func descriptionFor(e *models.CanonicalEvent) string {
	price := models.FormatPrice(e.Price)
	if e.Description == "" {
		return "Price: " + price
	}
	return "Price: " + price + "\n" + e.Description
}

// escapeText applies RFC 5545 TEXT escaping: backslash, semicolon, comma
// and newline.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ";", `\;`)
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, "\r\n", `\n`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// writeLine emits one content line, folding at 75 octets with CRLF plus a
// single space per RFC 5545 §3.1. Folding is byte-based but never splits
// a UTF-8 sequence.
func writeLine(b *strings.Builder, line string) {
	octets := []byte(line)
	first := true
	for len(octets) > 0 {
		limit := maxLineOctets
		if !first {
			limit = maxLineOctets - 1 // continuation lines carry a leading space
		}
		if len(octets) <= limit {
			if !first {
				b.WriteByte(' ')
			}
			b.Write(octets)
			break
		}
		cut := limit
		for cut > 0 && octets[cut]&0xC0 == 0x80 {
			cut--
		}
		if !first {
			b.WriteByte(' ')
		}
		b.Write(octets[:cut])
		b.WriteString("\r\n")
		octets = octets[cut:]
		first = false
	}
	b.WriteString("\r\n")
}

// formatGeo renders a coordinate with six decimal places, trailing zeros
// trimmed.
func formatGeo(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
