// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import (
	"fmt"
	"math"
)

// FormatPrice renders a resolved price for display:
//
//	nil   -> "Unknown"
//	0     -> "Free"
//	12.6  -> "$13"  (rounded to the nearest whole dollar)
func FormatPrice(price *float64) string {
	if price == nil {
		return "Unknown"
	}
	if *price == 0 {
		return "Free"
	}
	return fmt.Sprintf("$%d", int64(math.Round(*price)))
}
