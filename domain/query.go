package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

const (
	DefaultSortBy = "createdAt"
	SortAscending = "asc"
)

// ListParams are the raw, optional query parameters of a task listing.
type ListParams struct {
	Status   string
	Priority string
	Search   string
	SortBy   string
	Order    string
}

// TaskQuery is the store level filter and sort of a listing. Owner is always
// set and every other condition is ANDed with it. Empty strings mean "no
// condition". Status and Priority are compared verbatim so unknown values
// simply match nothing. SortBy is a field name passed through to the store.
type TaskQuery struct {
	Owner     string
	Status    string
	Priority  string
	Search    string
	SortBy    string
	Ascending bool
}

// BuildTaskQuery scopes params to owner and fills in the sort defaults.
// Any order other than exactly "asc" sorts descending.
func BuildTaskQuery(owner string, p ListParams) TaskQuery {
	q := TaskQuery{
		Owner:     owner,
		Status:    p.Status,
		Priority:  p.Priority,
		Search:    p.Search,
		SortBy:    p.SortBy,
		Ascending: p.Order == SortAscending,
	}
	if q.SortBy == "" {
		q.SortBy = DefaultSortBy
	}
	return q
}

// Matches evaluates the filter part of q against t. Stores that cannot push
// the whole filter down use it to finish the job in process.
func (q TaskQuery) Matches(t Task) bool {
	if t.Owner != q.Owner {
		return false
	}
	if q.Status != "" && string(t.Status) != q.Status {
		return false
	}
	if q.Priority != "" && string(t.Priority) != q.Priority {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return true
}

// SortTasks orders tasks by a single field the way a document store does:
// strings compare bytewise, a missing due date sorts before any date, and an
// unknown field leaves the order untouched.
func SortTasks(tasks []Task, field string, ascending bool) {
	compare := taskComparator(field)
	if compare == nil {
		return
	}
	slices.SortStableFunc(tasks, func(a, b Task) int {
		c := compare(a, b)
		if !ascending {
			c = -c
		}
		return c
	})
}

func taskComparator(field string) func(a, b Task) int {
	switch field {
	case "_id", "id":
		return func(a, b Task) int { return strings.Compare(a.ID, b.ID) }
	case "title":
		return func(a, b Task) int { return strings.Compare(a.Title, b.Title) }
	case "description":
		return func(a, b Task) int { return strings.Compare(a.Description, b.Description) }
	case "status":
		return func(a, b Task) int { return strings.Compare(string(a.Status), string(b.Status)) }
	case "priority":
		return func(a, b Task) int { return strings.Compare(string(a.Priority), string(b.Priority)) }
	case "user", "owner":
		return func(a, b Task) int { return strings.Compare(a.Owner, b.Owner) }
	case "dueDate":
		return func(a, b Task) int { return compareOptionalTime(a.DueDate, b.DueDate) }
	case "createdAt":
		return func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case "updatedAt":
		return func(a, b Task) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	}
	return nil
}

func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(a.UnixNano(), b.UnixNano())
}
