package tracker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flowyard/flowyard/internal/debug"
)

// Normalize filters a raw change-history feed down to state-transition
// events, parses timestamps, and sorts ascending by occurrence time.
//
// The sort is mandatory: source APIs return entries in reverse-chronological
// or unspecified order, and processing out of order corrupts interval
// construction. Entries are dropped when the changed field does not match
// the selector, when the destination value is blank, or when the timestamp
// cannot be parsed with any of the given layouts (malformed events skip,
// they never stall the feed).
//
// Normalize is a pure function: the same raw feed always yields the same
// ordered event list, which is what makes re-ingestion idempotent.
func Normalize(raw []RawChange, sel FieldSelector, layouts []string) []ChangeEvent {
	events := make([]ChangeEvent, 0, len(raw))
	for _, rc := range raw {
		if !sel.Matches(rc.FieldID, rc.FieldName) {
			continue
		}
		if strings.TrimSpace(rc.ToValue) == "" {
			continue
		}
		at, ok := parseTimestamp(rc.At, layouts)
		if !ok {
			debug.Logf("normalize: skipping event with unparseable timestamp %q\n", rc.At)
			continue
		}
		events = append(events, ChangeEvent{
			FromValue:   strings.TrimSpace(rc.FromValue),
			ToValue:     strings.TrimSpace(rc.ToValue),
			OccurredAt:  at.UTC(),
			ActorName:   strings.TrimSpace(rc.AuthorName),
			ActorEmail:  strings.TrimSpace(rc.AuthorEmail),
		})
	}

	// Stable: entries with equal timestamps keep feed order, so the result
	// is deterministic for a fixed input.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events
}

func parseTimestamp(s string, layouts []string) (time.Time, bool) {
	t, err := ParseTimestamp(s, layouts)
	return t, err == nil
}

// ParseTimestamp parses a wire-format timestamp against the given layouts,
// tried in order. An empty layout list defaults to RFC3339. Adapters use it
// for timestamps outside the change feed, such as an item's creation date.
func ParseTimestamp(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339}
	}
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q matches no known layout: %w", s, err)
}
