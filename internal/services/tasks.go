package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

const (
	titleMinLength  = 3
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultOrdering = "-created_at"
)

var taskOrderings = []string{"created_at", "due_date", "priority"}

// Optional records whether a JSON field was present at all and, if it was,
// whether it was null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type TaskInput struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Status      Optional[string] `json:"status"`
	Priority    Optional[string] `json:"priority"`
	DueDate     Optional[string] `json:"due_date"`
}

type TaskListQuery struct {
	Status   string
	Priority string
	DueDate  string
	Search   string
	Ordering string
	Page     int
	PageSize int
}

type TaskPage struct {
	Tasks    []models.Task `json:"tasks"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	FindOwned(ctx context.Context, owner, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, owner uuid.UUID, f repositories.TaskFilter) ([]models.Task, int64, error)
	Save(ctx context.Context, t *models.Task) error
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

type TaskService struct {
	tasks  TaskStore
	logger *slog.Logger
	now    func() time.Time
}

func NewTaskService(tasks TaskStore, logger *slog.Logger) *TaskService {
	return &TaskService{tasks: tasks, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for due date checks.
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

func (s *TaskService) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(v string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, strings.TrimSpace(v), time.UTC)
}

// apply validates in and copies every present field onto t. requireTitle is
// set for create and full replacement.
func (s *TaskService) apply(t *models.Task, in TaskInput, requireTitle bool) error {
	verr := &ValidationError{}

	switch {
	case in.Title.Set && in.Title.Value == nil:
		verr.Add("title", "This field may not be null.")
	case in.Title.Set:
		title := strings.TrimSpace(*in.Title.Value)
		n := utf8.RuneCountInString(title)
		switch {
		case n == 0:
			verr.Add("title", "This field may not be blank.")
		case n < titleMinLength:
			verr.Add("title", fmt.Sprintf("Title must be at least %d characters long.", titleMinLength))
		case n > maxFieldLen:
			verr.Add("title", fmt.Sprintf("Ensure this field has no more than %d characters.", maxFieldLen))
		default:
			t.Title = title
		}
	case requireTitle:
		verr.Add("title", msgRequired)
	}

	if in.Description.Set {
		t.Description = in.Description.Value
	}

	if in.Status.Set {
		if in.Status.Value == nil {
			verr.Add("status", "This field may not be null.")
		} else if !slices.Contains(models.TaskStatuses, *in.Status.Value) {
			verr.Add("status", fmt.Sprintf("%q is not a valid choice.", *in.Status.Value))
		} else {
			t.Status = *in.Status.Value
		}
	}

	if in.Priority.Set {
		if in.Priority.Value == nil {
			verr.Add("priority", "This field may not be null.")
		} else if !slices.Contains(models.TaskPriorities, *in.Priority.Value) {
			verr.Add("priority", fmt.Sprintf("%q is not a valid choice.", *in.Priority.Value))
		} else {
			t.Priority = *in.Priority.Value
		}
	}

	if in.DueDate.Set {
		if in.DueDate.Value == nil {
			t.DueDate = nil
		} else if due, err := parseDate(*in.DueDate.Value); err != nil {
			verr.Add("due_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		} else if due.Before(s.today()) {
			verr.Add("due_date", "Due date cannot be in the past.")
		} else {
			t.DueDate = &due
		}
	}

	return verr.OrNil()
}

func (s *TaskService) Create(ctx context.Context, owner uuid.UUID, in TaskInput) (*models.Task, error) {
	t := &models.Task{
		UserID:   owner,
		Status:   models.StatusPending,
		Priority: models.PriorityMedium,
	}
	if err := s.apply(t, in, true); err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task created", "task_id", t.ID, "user_id", owner)
	return t, nil
}

// Get returns the owner's task. Missing rows, other owners' rows and ids that
// are not uuids all yield the same NotFoundError.
func (s *TaskService) Get(ctx context.Context, owner uuid.UUID, id string) (*models.Task, error) {
	taskID, err := uuid.FromString(id)
	if err != nil {
		return nil, &NotFoundError{Resource: "task"}
	}

	t, err := s.tasks.FindOwned(ctx, owner, taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &NotFoundError{Resource: "task"}
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

func (s *TaskService) List(ctx context.Context, owner uuid.UUID, q TaskListQuery) (*TaskPage, error) {
	verr := &ValidationError{}
	filter := repositories.TaskFilter{Search: q.Search}

	if q.Status != "" {
		if !slices.Contains(models.TaskStatuses, q.Status) {
			verr.Add("status", fmt.Sprintf("%q is not a valid choice.", q.Status))
		}
		filter.Status = q.Status
	}
	if q.Priority != "" {
		if !slices.Contains(models.TaskPriorities, q.Priority) {
			verr.Add("priority", fmt.Sprintf("%q is not a valid choice.", q.Priority))
		}
		filter.Priority = q.Priority
	}
	if q.DueDate != "" {
		due, err := parseDate(q.DueDate)
		if err != nil {
			verr.Add("due_date", "Enter a valid date.")
		} else {
			filter.DueDate = &due
		}
	}

	ordering := q.Ordering
	if ordering == "" {
		ordering = DefaultOrdering
	}
	field := strings.TrimPrefix(ordering, "-")
	if !slices.Contains(taskOrderings, field) {
		verr.Add("ordering", fmt.Sprintf("%q is not a valid ordering.", ordering))
	}
	filter.OrderBy = field
	filter.Desc = strings.HasPrefix(ordering, "-")

	page := q.Page
	if page == 0 {
		page = 1
	}
	size := q.PageSize
	switch {
	case size == 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	if q.PageSize < 0 {
		verr.Add("page_size", "Invalid page size.")
	}
	// The offset must stay within a 32-bit row count.
	if page < 0 || (size > 0 && page-1 > math.MaxInt32/size) {
		verr.Add("page", "Invalid page.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	filter.Limit = size
	filter.Offset = (page - 1) * size

	tasks, total, err := s.tasks.List(ctx, owner, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &TaskPage{Tasks: tasks, Total: total, Page: page, PageSize: size}, nil
}

// Update applies in to the owner's task. With partial unset the title must be
// present, as for a full replacement.
func (s *TaskService) Update(ctx context.Context, owner uuid.UUID, id string, in TaskInput, partial bool) (*models.Task, error) {
	t, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if err := s.apply(t, in, !partial); err != nil {
		return nil, err
	}

	if err := s.tasks.Save(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &NotFoundError{Resource: "task"}
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, owner uuid.UUID, id string) error {
	taskID, err := uuid.FromString(id)
	if err != nil {
		return &NotFoundError{Resource: "task"}
	}

	if err := s.tasks.Delete(ctx, owner, taskID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &NotFoundError{Resource: "task"}
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.logger.Info("task deleted", "task_id", taskID, "user_id", owner)
	return nil
}
