package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const priorityRank = "CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 ELSE 0 END"

// searchClause is parenthesised so the OR never escapes the owner condition.
const searchClause = `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// TaskFilter narrows an owner's task list. Zero values mean "no constraint".
type TaskFilter struct {
	Status   string
	Priority string
	DueDate  *time.Time
	Search   string

	// OrderBy is one of created_at, due_date or priority.
	OrderBy string
	Desc    bool

	Limit  int
	Offset int
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// FindOwned returns the task only when it belongs to owner.
func (r *TaskRepository) FindOwned(ctx context.Context, owner, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) List(ctx context.Context, owner uuid.UUID, f TaskFilter) ([]models.Task, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Task{}).Where("user_id = ?", owner)

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.DueDate != nil {
		q = q.Where("due_date = ?", *f.DueDate)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		q = q.Where(searchClause, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dir := " ASC"
	if f.Desc {
		dir = " DESC"
	}
	switch f.OrderBy {
	case "priority":
		q = q.Order(priorityRank + dir)
	case "due_date":
		q = q.Order("due_date" + dir)
	default:
		q = q.Order("created_at" + dir)
	}
	q = q.Order("id")

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	tasks := make([]models.Task, 0)
	if err := q.Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Save persists every column of an already-loaded task.
func (r *TaskRepository) Save(ctx context.Context, t *models.Task) error {
	res := r.db.WithContext(ctx).Model(t).Where("user_id = ?", t.UserID).Select("*").Omit("id", "user_id", "created_at").Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, owner, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).Delete(&models.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
