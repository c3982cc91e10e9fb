// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import "testing"

func f(v float64) *float64 { return &v }

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name  string
		price *float64
		want  string
	}{
		{name: "nil is unknown", price: nil, want: "Unknown"},
		{name: "zero is free", price: f(0), want: "Free"},
		{name: "rounds up", price: f(12.6), want: "$13"},
		{name: "rounds down", price: f(12.4), want: "$12"},
		{name: "whole dollars", price: f(25), want: "$25"},
		{name: "half rounds up", price: f(9.5), want: "$10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPrice(tt.price); got != tt.want {
				t.Errorf("FormatPrice() = %q, want %q", got, tt.want)
			}
		})
	}
}
