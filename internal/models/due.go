package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DueDateLayout is the display and input format for due dates (MM/dd/yyyy hh:mm a)
const DueDateLayout = "01/02/2006 03:04 PM"

// ErrInvalidDueDate is returned when due date text cannot be parsed
var ErrInvalidDueDate = errors.New("invalid due date")

// FormatDueDate renders epoch milliseconds in loc, or "" for no due date
func FormatDueDate(millis *int64, loc *time.Location) string {
	if millis == nil {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(*millis).In(loc).Format(DueDateLayout)
}

// ParseDueDate parses due date text in loc. Empty input means no due date.
func ParseDueDate(s string, loc *time.Location) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DueDateLayout, strings.ToUpper(s), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDueDate, s)
	}
	ms := t.UnixMilli()
	return &ms, nil
}
