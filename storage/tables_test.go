package storage

import (
	"encoding/json"
	"testing"
	"time"

	"primetrade-api/domain"
)

func TestOdataStringEscapesQuotes(t *testing.T) {
	if got := odataString("o'brien"); got != "'o''brien'" {
		t.Fatalf("unexpected literal: %s", got)
	}
}

func TestTableTaskFilter(t *testing.T) {
	testCases := []struct {
		name string
		q    domain.TaskQuery
		want string
	}{
		{"owner", domain.TaskQuery{Owner: "u1"}, "PartitionKey eq 'u1'"},
		{"status", domain.TaskQuery{Owner: "u1", Status: "pending"}, "PartitionKey eq 'u1' and Status eq 'pending'"},
		{"both", domain.TaskQuery{Owner: "u1", Status: "x'y", Priority: "high", Search: "ignored"},
			"PartitionKey eq 'u1' and Status eq 'x''y' and Priority eq 'high'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tableTaskFilter(tc.q); got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestTaskEntityRoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	task := domain.Task{
		ID:        "9b6f7f0e-2d7b-4c53-8f7a-2f5c8d6e1a10",
		Owner:     "u1",
		Title:     "Write docs",
		Status:    domain.StatusInProgress,
		Priority:  domain.PriorityHigh,
		DueDate:   &due,
		CreatedAt: created,
		UpdatedAt: created,
	}
	raw, err := json.Marshal(newTaskEntity(task))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if fields["PartitionKey"] != "u1" || fields["DueDate@odata.type"] != edmDateTime {
		t.Fatalf("unexpected entity: %v", fields)
	}
	if _, ok := fields["Timestamp"]; ok {
		t.Fatalf("entity must not carry a Timestamp: %v", fields)
	}

	var ent taskEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := ent.task()
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if back.ID != task.ID || back.Owner != "u1" || !back.CreatedAt.Equal(created) || back.DueDate == nil || !back.DueDate.Equal(due) {
		t.Fatalf("unexpected task: %#v", back)
	}
}

func TestTaskEntityTruncatesDueDate(t *testing.T) {
	due := time.Date(2024, 1, 1, 10, 0, 0, 123456789, time.UTC)
	ent := newTaskEntity(domain.Task{ID: "x", Owner: "u1", DueDate: &due})
	if ent.DueDate == nil || *ent.DueDate != "2024-01-01T10:00:00.123Z" {
		t.Fatalf("unexpected due date: %v", ent.DueDate)
	}
	back, err := ent.task()
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if want := due.Truncate(time.Millisecond); !back.DueDate.Equal(want) {
		t.Fatalf("want %v, got %v", want, back.DueDate)
	}
}

func TestTaskEntityWithoutDueDate(t *testing.T) {
	raw, err := json.Marshal(newTaskEntity(domain.Task{ID: "x", Owner: "u1"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["DueDate"]; ok {
		t.Fatalf("DueDate should be omitted: %v", fields)
	}
}

func TestParseTableTimeAcceptsServiceFormat(t *testing.T) {
	got, err := parseTableTime("2024-01-02T03:04:05.1234567Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Nanosecond() != 123_456_700 {
		t.Fatalf("unexpected fraction: %v", got)
	}
	if _, err := parseTableTime("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEmailRowKey(t *testing.T) {
	if got := emailRowKey(" A#b?c/d@Example.com "); got != "a%23b%3Fc%2Fd@example.com" {
		t.Fatalf("unexpected key: %s", got)
	}
}
