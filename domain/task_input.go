package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// NullableString tells an absent JSON field apart from an explicit null.
type NullableString struct {
	Set   bool
	Valid bool
	Value string
}

func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Valid = false
		n.Value = ""
		return nil
	}
	if err := json.Unmarshal(b, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// TaskInput is the client supplied body of a create or update request.
// Fields the client may not set (id, owner, timestamps) are deliberately
// absent so that they are dropped during decoding.
type TaskInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *string        `json:"status"`
	Priority    *string        `json:"priority"`
	DueDate     NullableString `json:"dueDate"`
}

var dueDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDueDate parses an ISO-8601 calendar date or date-time.
func ParseDueDate(s string) (time.Time, bool) {
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NewTask validates a create request and returns the task it describes with
// defaults applied. The owner and timestamps are not set.
func (in TaskInput) NewTask() (Task, error) {
	p, err := in.validate(true)
	if err != nil {
		return Task{}, err
	}
	t := Task{Status: StatusPending, Priority: PriorityMedium}
	p.Apply(&t)
	return t, nil
}

// Patch validates an update request. Every field is optional but a present
// title must not be blank.
func (in TaskInput) Patch() (TaskPatch, error) {
	return in.validate(false)
}

func (in TaskInput) validate(create bool) (TaskPatch, error) {
	var (
		errs fieldErrors
		p    TaskPatch
	)

	switch {
	case in.Title == nil:
		if create {
			errs.add("title", "Title is required")
		}
	case strings.TrimSpace(*in.Title) == "":
		if create {
			errs.add("title", "Title is required")
		} else {
			errs.add("title", "Title cannot be empty")
		}
	default:
		title := strings.TrimSpace(*in.Title)
		p.Title = &title
	}

	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		p.Description = &desc
	}

	if in.Status != nil {
		s := Status(*in.Status)
		if slices.Contains(validStatuses, s) {
			p.Status = &s
		} else {
			errs.add("status", "Invalid status")
		}
	}

	if in.Priority != nil {
		pr := Priority(*in.Priority)
		if slices.Contains(validPriorities, pr) {
			p.Priority = &pr
		} else {
			errs.add("priority", "Invalid priority")
		}
	}

	if in.DueDate.Set {
		raw := strings.TrimSpace(in.DueDate.Value)
		if !in.DueDate.Valid || raw == "" {
			p.ClearDueDate = true
		} else if d, ok := ParseDueDate(raw); ok {
			p.DueDate = &d
		} else {
			errs.add("dueDate", "Invalid date format")
		}
	}

	if err := errs.err(); err != nil {
		return TaskPatch{}, err
	}
	return p, nil
}
