// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
// Supported syntax per field: "*", single values, ranges ("1-5"), lists
// ("1,3,5") and steps ("*/15", "0-30/10"). Day-of-month and day-of-week
// combine with OR when both are restricted, matching standard cron.
type Schedule struct {
	minutes  fieldSet
	hours    fieldSet
	days     fieldSet
	months   fieldSet
	weekdays fieldSet
}

type fieldSet struct {
	values   map[int]bool
	wildcard bool
}

func (f fieldSet) matches(v int) bool {
	return f.wildcard || f.values[v]
}

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression needs 5 fields, got %d", len(fields))
	}

	specs := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 7},
	}

	s := &Schedule{}
	outs := []*fieldSet{&s.minutes, &s.hours, &s.days, &s.months, &s.weekdays}
	for i, spec := range specs {
		fs, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", spec.name, err)
		}
		*outs[i] = fs
	}

	// Cron allows both 0 and 7 for Sunday.
	if s.weekdays.values[7] {
		delete(s.weekdays.values, 7)
		s.weekdays.values[0] = true
	}
	return s, nil
}

// Next returns the first matching instant strictly after t, in t's
// location. The search is bounded; a valid expression always matches
// within four years.
func (s *Schedule) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)
	for t.Before(limit) {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (s *Schedule) matches(t time.Time) bool {
	if !s.minutes.matches(t.Minute()) || !s.hours.matches(t.Hour()) || !s.months.matches(int(t.Month())) {
		return false
	}
	dayOK := s.days.matches(t.Day())
	weekdayOK := s.weekdays.matches(int(t.Weekday()))
	if s.days.wildcard || s.weekdays.wildcard {
		return dayOK && weekdayOK
	}
	// Both restricted: standard cron ORs them.
	return dayOK || weekdayOK
}

func parseCronField(field string, min, max int) (fieldSet, error) {
	if field == "*" {
		return fieldSet{wildcard: true}, nil
	}

	fs := fieldSet{values: make(map[int]bool)}
	for _, part := range strings.Split(field, ",") {
		if err := parseCronPart(part, min, max, fs.values); err != nil {
			return fieldSet{}, err
		}
	}
	return fs, nil
}

func parseCronPart(part string, min, max int, out map[int]bool) error {
	step := 1
	if slash := strings.IndexByte(part, '/'); slash >= 0 {
		v, err := strconv.Atoi(part[slash+1:])
		if err != nil || v <= 0 {
			return fmt.Errorf("bad step %q", part)
		}
		step = v
		part = part[:slash]
	}

	lo, hi := min, max
	switch {
	case part == "*":
		// full range
	case strings.Contains(part, "-"):
		bounds := strings.SplitN(part, "-", 2)
		var err1, err2 error
		lo, err1 = strconv.Atoi(bounds[0])
		hi, err2 = strconv.Atoi(bounds[1])
		if err1 != nil || err2 != nil || lo > hi {
			return fmt.Errorf("bad range %q", part)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("bad value %q", part)
		}
		lo = v
		if step == 1 {
			hi = v
		}
	}

	if lo < min || hi > max {
		return fmt.Errorf("value out of range %d-%d: %q", min, max, part)
	}
	for v := lo; v <= hi; v += step {
		out[v] = true
	}
	return nil
}
