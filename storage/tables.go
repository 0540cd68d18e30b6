package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"primetrade-api/domain"
)

const (
	edmDateTime       = "Edm.DateTime"
	userPartition     = "user"
	emailPartition    = "email"
	tableTimestampFmt = time.RFC3339Nano
)

// Tables stores tasks and users in Azure Table Storage. Tasks are
// partitioned by owner; filters that the table service cannot evaluate
// (substring search, arbitrary sort) run in process.
type Tables struct {
	service   *aztables.ServiceClient
	taskTable *aztables.Client
	userTable *aztables.Client
	now       func() time.Time
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr, tasksTable, usersTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		service:   svc,
		taskTable: svc.NewClient(tasksTable),
		userTable: svc.NewClient(usersTable),
		now:       time.Now,
	}, nil
}

// EnsureTables creates the task and user tables when missing.
func (s *Tables) EnsureTables(ctx context.Context) error {
	for _, c := range []*aztables.Client{s.taskTable, s.userTable} {
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

// Ping issues a minimal query against the tasks table.
func (s *Tables) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}

type tableKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	tableKeys
	Title         string  `json:"Title"`
	Description   string  `json:"Description"`
	Status        string  `json:"Status"`
	Priority      string  `json:"Priority"`
	DueDate       *string `json:"DueDate,omitempty"`
	DueDateType   *string `json:"DueDate@odata.type,omitempty"`
	CreatedAt     string  `json:"CreatedAt"`
	CreatedAtType string  `json:"CreatedAt@odata.type"`
	UpdatedAt     string  `json:"UpdatedAt"`
	UpdatedAtType string  `json:"UpdatedAt@odata.type"`
}

func newTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		tableKeys:     tableKeys{PartitionKey: t.Owner, RowKey: t.ID},
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		CreatedAt:     formatTableTime(t.CreatedAt),
		CreatedAtType: edmDateTime,
		UpdatedAt:     formatTableTime(t.UpdatedAt),
		UpdatedAtType: edmDateTime,
	}
	if t.DueDate != nil {
		due := formatTableTime(*truncateMillis(t.DueDate))
		typ := edmDateTime
		ent.DueDate = &due
		ent.DueDateType = &typ
	}
	return ent
}

func (e taskEntity) task() (domain.Task, error) {
	t := domain.Task{
		ID:          e.RowKey,
		Owner:       e.PartitionKey,
		Title:       e.Title,
		Description: e.Description,
		Status:      domain.Status(e.Status),
		Priority:    domain.Priority(e.Priority),
	}
	var err error
	if t.CreatedAt, err = parseTableTime(e.CreatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("task %s CreatedAt: %w", e.RowKey, err)
	}
	if t.UpdatedAt, err = parseTableTime(e.UpdatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("task %s UpdatedAt: %w", e.RowKey, err)
	}
	if e.DueDate != nil {
		due, err := parseTableTime(*e.DueDate)
		if err != nil {
			return domain.Task{}, fmt.Errorf("task %s DueDate: %w", e.RowKey, err)
		}
		t.DueDate = &due
	}
	return t, nil
}

func formatTableTime(t time.Time) string {
	return t.UTC().Format(tableTimestampFmt)
}

func parseTableTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(tableTimestampFmt, s)
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// tableTaskFilter pushes the owner and exact-match conditions down to the
// table service.
func tableTaskFilter(q domain.TaskQuery) string {
	parts := []string{"PartitionKey eq " + odataString(q.Owner)}
	if q.Status != "" {
		parts = append(parts, "Status eq "+odataString(q.Status))
	}
	if q.Priority != "" {
		parts = append(parts, "Priority eq "+odataString(q.Priority))
	}
	return strings.Join(parts, " and ")
}

func (s *Tables) listTasks(ctx context.Context, filter string, top *int32) ([]domain.Task, error) {
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: top})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			t, err := ent.task()
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
		if top != nil && len(tasks) >= int(*top) {
			break
		}
	}
	return tasks, nil
}

// FindTasks returns the owner's tasks matching q, sorted in process.
func (s *Tables) FindTasks(ctx context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	all, err := s.listTasks(ctx, tableTaskFilter(q), nil)
	if err != nil {
		return nil, err
	}
	tasks := all[:0]
	for _, t := range all {
		if q.Matches(t) {
			tasks = append(tasks, t)
		}
	}
	domain.SortTasks(tasks, q.SortBy, q.Ascending)
	return tasks, nil
}

// FindTask looks the id up across partitions. Ids that are not UUIDs cannot
// have been issued by this store and are reported as missing.
func (s *Tables) FindTask(ctx context.Context, id string) (*domain.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	top := int32(1)
	tasks, err := s.listTasks(ctx, "RowKey eq "+odataString(id), &top)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (s *Tables) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := s.timestamp()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.DueDate = truncateMillis(t.DueDate)
	payload, err := json.Marshal(newTaskEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Tables) getTask(ctx context.Context, owner, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, owner, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	t, err := ent.task()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask replaces the stored entity with the patched task. There is no
// version check; concurrent writers resolve last-write-wins.
func (s *Tables) UpdateTask(ctx context.Context, owner, id string, p domain.TaskPatch) (*domain.Task, error) {
	t, err := s.getTask(ctx, owner, id)
	if err != nil || t == nil {
		return nil, err
	}
	p.Apply(t)
	t.UpdatedAt = s.timestamp()
	t.DueDate = truncateMillis(t.DueDate)
	payload, err := json.Marshal(newTaskEntity(*t))
	if err != nil {
		return nil, err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *Tables) DeleteTask(ctx context.Context, owner, id string) error {
	et := azcore.ETagAny
	if _, err := s.taskTable.DeleteEntity(ctx, owner, id, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

type userEntity struct {
	tableKeys
	Name          string `json:"Name"`
	Email         string `json:"Email"`
	Bio           string `json:"Bio,omitempty"`
	PasswordHash  string `json:"PasswordHash"`
	CreatedAt     string `json:"CreatedAt"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     string `json:"UpdatedAt"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

// emailEntity reserves an address. Its key uniqueness enforces one account
// per email.
type emailEntity struct {
	tableKeys
	UserID string `json:"UserID"`
}

func newUserEntity(u domain.User) userEntity {
	return userEntity{
		tableKeys:     tableKeys{PartitionKey: userPartition, RowKey: u.ID},
		Name:          u.Name,
		Email:         u.Email,
		Bio:           u.Bio,
		PasswordHash:  u.PasswordHash,
		CreatedAt:     formatTableTime(u.CreatedAt),
		CreatedAtType: edmDateTime,
		UpdatedAt:     formatTableTime(u.UpdatedAt),
		UpdatedAtType: edmDateTime,
	}
}

func (e userEntity) user() (domain.User, error) {
	u := domain.User{ID: e.RowKey, Name: e.Name, Email: e.Email, Bio: e.Bio, PasswordHash: e.PasswordHash}
	var err error
	if u.CreatedAt, err = parseTableTime(e.CreatedAt); err != nil {
		return domain.User{}, err
	}
	if u.UpdatedAt, err = parseTableTime(e.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// emailRowKey escapes characters that are not allowed in row keys.
func emailRowKey(email string) string {
	return url.PathEscape(domain.NormalizeEmail(email))
}

func (s *Tables) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	u, err := ent.user()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Tables) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, emailPartition, emailRowKey(email), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ent emailEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return s.FindUserByID(ctx, ent.UserID)
}

func (s *Tables) reserveEmail(ctx context.Context, email, userID string) error {
	payload, err := json.Marshal(emailEntity{
		tableKeys: tableKeys{PartitionKey: emailPartition, RowKey: emailRowKey(email)},
		UserID:    userID,
	})
	if err != nil {
		return err
	}
	if _, err := s.userTable.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, http.StatusConflict) {
			return domain.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Tables) releaseEmail(ctx context.Context, email string) error {
	_, err := s.userTable.DeleteEntity(ctx, emailPartition, emailRowKey(email), nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func (s *Tables) InsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := s.timestamp()
	u.ID = uuid.NewString()
	u.Email = domain.NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.reserveEmail(ctx, u.Email, u.ID); err != nil {
		return domain.User{}, err
	}
	payload, err := json.Marshal(newUserEntity(u))
	if err == nil {
		_, err = s.userTable.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		_ = s.releaseEmail(ctx, u.Email)
		return domain.User{}, err
	}
	return u, nil
}

func (s *Tables) UpdateUser(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	u, err := s.FindUserByID(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	oldEmail := u.Email
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	emailChanged := false
	if p.Email != nil {
		if email := domain.NormalizeEmail(*p.Email); email != oldEmail {
			if err := s.reserveEmail(ctx, email, id); err != nil {
				return nil, err
			}
			u.Email = email
			emailChanged = true
		}
	}
	u.UpdatedAt = s.timestamp()
	payload, err := json.Marshal(newUserEntity(*u))
	if err == nil {
		et := azcore.ETagAny
		_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	}
	if err != nil {
		if emailChanged {
			_ = s.releaseEmail(ctx, u.Email)
		}
		return nil, err
	}
	if emailChanged {
		if err := s.releaseEmail(ctx, oldEmail); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (s *Tables) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
