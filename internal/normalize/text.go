// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package normalize

import (
	"html"
	"regexp"
	"strings"
)

var (
	// markdownLink matches [text](url); the text survives, the URL goes.
	markdownLink = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

	// markdownHeading matches leading #-runs at line starts.
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s*`)

	// markdownEmphasis matches *, **, _, __ and backtick runs.
	markdownEmphasis = regexp.MustCompile("[*_`]+")

	// whitespaceRun collapses any whitespace run to one space.
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// DecodeEntities resolves HTML entities (&amp;, &#39;, ...) to their
// characters.
func DecodeEntities(s string) string {
	return html.UnescapeString(s)
}

// StripMarkdown removes common markdown syntax, keeping the visible text.
func StripMarkdown(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1")
	s = markdownHeading.ReplaceAllString(s, "")
	s = markdownEmphasis.ReplaceAllString(s, "")
	return s
}

// CleanText decodes entities, strips markdown, and collapses whitespace.
// Deterministic: identical input always yields identical output.
func CleanText(s string) string {
	s = DecodeEntities(s)
	s = StripMarkdown(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TrimLocationPhrase removes redundant location phrases from a
// description: a trailing "at <venue>" or "in <region>" adds nothing when
// venue and region are separate fields. Interior text is left alone; only
// sentence-final repetitions are trimmed.
func TrimLocationPhrase(desc, venue, region string) string {
	out := strings.TrimSpace(desc)
	for _, loc := range []string{venue, region} {
		if loc == "" {
			continue
		}
		for _, prep := range []string{"at", "in", "@"} {
			suffix := prep + " " + loc
			trimmed := strings.TrimSuffix(out, ".")
			if n := len(trimmed) - len(suffix); n >= 0 && strings.EqualFold(trimmed[n:], suffix) {
				out = strings.TrimSpace(trimmed[:n])
				// A dangling comma or dash may precede the phrase.
				out = strings.TrimRight(out, ",- ")
			}
		}
	}
	return out
}
