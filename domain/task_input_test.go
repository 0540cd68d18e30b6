package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTaskInputDecodesDueDatePresence(t *testing.T) {
	testCases := map[string]NullableString{
		`{}`:                       {},
		`{"dueDate":null}`:         {Set: true},
		`{"dueDate":""}`:           {Set: true, Valid: true},
		`{"dueDate":"2024-02-29"}`: {Set: true, Valid: true, Value: "2024-02-29"},
	}
	for body, want := range testCases {
		t.Run(body, func(t *testing.T) {
			var in TaskInput
			if err := json.Unmarshal([]byte(body), &in); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if in.DueDate != want {
				t.Fatalf("want %#v, got %#v", want, in.DueDate)
			}
		})
	}
}

func TestTaskInputIgnoresOwnerFields(t *testing.T) {
	var in TaskInput
	body := `{"title":"x","user":"mallory","owner":"mallory","_id":"abc"}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	task, err := in.NewTask()
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Owner != "" || task.ID != "" {
		t.Fatalf("client controlled fields leaked: %#v", task)
	}
}

func TestNewTaskCollectsAllErrors(t *testing.T) {
	in := TaskInput{
		Status:   ptrString("archived"),
		Priority: ptrString("urgent"),
		DueDate:  NullableString{Set: true, Valid: true, Value: "2024-02-30"},
	}
	_, err := in.NewTask()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []FieldError{
		{Path: "title", Msg: "Title is required", Location: "body"},
		{Path: "status", Msg: "Invalid status", Location: "body"},
		{Path: "priority", Msg: "Invalid priority", Location: "body"},
		{Path: "dueDate", Msg: "Invalid date format", Location: "body"},
	}
	if len(verr.Fields) != len(want) {
		t.Fatalf("want %d errors, got %#v", len(want), verr.Fields)
	}
	for i := range want {
		if verr.Fields[i] != want[i] {
			t.Fatalf("error %d: want %#v, got %#v", i, want[i], verr.Fields[i])
		}
	}
}

func TestPatchAllowsMissingTitle(t *testing.T) {
	p, err := TaskInput{Priority: ptrString("low")}.Patch()
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if p.Title != nil || p.Priority == nil || *p.Priority != PriorityLow {
		t.Fatalf("unexpected patch: %#v", p)
	}
}

func TestParseDueDate(t *testing.T) {
	testCases := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2024-05-01", true, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:30:00Z", true, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-05-01T10:30:00+02:00", true, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)},
		{"2024-05-01T10:30:00", true, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{"2023-02-29", false, time.Time{}},
		{"05/01/2024", false, time.Time{}},
		{"tomorrow", false, time.Time{}},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseDueDate(tc.in)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}
