// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package normalize

import (
	"strconv"
	"strings"
)

// ParsePrice resolves a source's price text into the canonical
// representation: nil for unknown, 0 for free, a positive amount otherwise.
//
// Rules:
//
//	"", "null", "undefined"      -> nil (unknown)
//	"0", "free"                  -> 0 (free)
//	"12.50", "$12.50", "1,200"   -> parsed amount
//	anything unparseable         -> nil (unknown)
//	negative amounts             -> nil (bad upstream data, treat unknown)
func ParsePrice(text string) *float64 {
	s := strings.TrimSpace(strings.ToLower(text))
	switch s {
	case "", "null", "undefined", "n/a", "tba":
		return nil
	case "free", "gratis":
		zero := 0.0
		return &zero
	}

	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
