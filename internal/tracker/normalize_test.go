package tracker

import (
	"testing"
	"time"
)

var statusSel = FieldSelector{FieldID: "status", FieldName: "status"}

func TestNormalizeFiltersAndSorts(t *testing.T) {
	raw := []RawChange{
		{FieldName: "status", FromValue: "Doing", ToValue: "Done", At: "2024-03-03T10:00:00Z", AuthorName: "Ana"},
		{FieldName: "assignee", FromValue: "", ToValue: "Bob", At: "2024-03-02T10:00:00Z"},
		{FieldName: "status", FromValue: "Todo", ToValue: "Doing", At: "2024-03-01T10:00:00Z", AuthorName: "Bob"},
	}

	events := Normalize(raw, statusSel, nil)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ToValue != "Doing" || events[1].ToValue != "Done" {
		t.Errorf("events not in chronological order: %+v", events)
	}
	if !events[0].OccurredAt.Before(events[1].OccurredAt) {
		t.Errorf("timestamps not ascending")
	}
}

func TestNormalizeMatchesFieldIDCaseInsensitive(t *testing.T) {
	raw := []RawChange{
		{FieldID: "STATUS", ToValue: "Done", At: "2024-03-01T10:00:00Z"},
	}
	events := Normalize(raw, statusSel, nil)
	if len(events) != 1 {
		t.Fatalf("expected field id match to be case-insensitive, got %d events", len(events))
	}
}

func TestNormalizeDropsBlankDestinations(t *testing.T) {
	raw := []RawChange{
		{FieldName: "status", ToValue: "  ", At: "2024-03-01T10:00:00Z"},
		{FieldName: "status", ToValue: "", At: "2024-03-02T10:00:00Z"},
		{FieldName: "status", ToValue: "Done", At: "2024-03-03T10:00:00Z"},
	}
	events := Normalize(raw, statusSel, nil)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ToValue != "Done" {
		t.Errorf("kept wrong event: %+v", events[0])
	}
}

func TestNormalizeSkipsUnparseableTimestamps(t *testing.T) {
	raw := []RawChange{
		{FieldName: "status", ToValue: "Doing", At: "not a timestamp"},
		{FieldName: "status", ToValue: "Done", At: "2024-03-01T10:00:00Z"},
	}
	events := Normalize(raw, statusSel, nil)
	if len(events) != 1 {
		t.Fatalf("malformed timestamp should skip the event, got %d events", len(events))
	}
}

func TestNormalizeJiraLayout(t *testing.T) {
	layouts := []string{"2006-01-02T15:04:05.000-0700"}
	raw := []RawChange{
		{FieldName: "status", ToValue: "Done", At: "2024-03-01T10:00:00.000+0200"},
	}
	events := Normalize(raw, statusSel, layouts)
	if len(events) != 1 {
		t.Fatalf("expected jira layout to parse, got %d events", len(events))
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if !events[0].OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v (UTC)", events[0].OccurredAt, want)
	}
	if events[0].OccurredAt.Location() != time.UTC {
		t.Errorf("OccurredAt not normalized to UTC")
	}
}

func TestNormalizeStableForEqualTimestamps(t *testing.T) {
	raw := []RawChange{
		{FieldName: "status", ToValue: "A", At: "2024-03-01T10:00:00Z"},
		{FieldName: "status", ToValue: "B", At: "2024-03-01T10:00:00Z"},
	}
	events := Normalize(raw, statusSel, nil)
	if len(events) != 2 || events[0].ToValue != "A" || events[1].ToValue != "B" {
		t.Errorf("equal timestamps must keep feed order, got %+v", events)
	}
}

func TestNormalizePageOrderInvariance(t *testing.T) {
	pageA := []RawChange{
		{FieldName: "status", FromValue: "Doing", ToValue: "Done", At: "2024-03-03T10:00:00Z"},
	}
	pageB := []RawChange{
		{FieldName: "status", FromValue: "Todo", ToValue: "Doing", At: "2024-03-01T10:00:00Z"},
	}

	forward := Normalize(append(append([]RawChange{}, pageB...), pageA...), statusSel, nil)
	reverse := Normalize(append(append([]RawChange{}, pageA...), pageB...), statusSel, nil)

	if len(forward) != len(reverse) {
		t.Fatalf("length mismatch: %d vs %d", len(forward), len(reverse))
	}
	for i := range forward {
		if forward[i] != reverse[i] {
			t.Errorf("event %d differs by page order: %+v vs %+v", i, forward[i], reverse[i])
		}
	}
}

func TestParseTimestampFallsThroughLayouts(t *testing.T) {
	layouts := []string{"2006-01-02T15:04:05.000-0700", time.RFC3339}
	got, err := ParseTimestamp("2024-03-01T10:00:00Z", layouts)
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("parsed %v", got)
	}

	if _, err := ParseTimestamp("", layouts); err == nil {
		t.Errorf("empty timestamp should error")
	}
}
