package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"taskify/backend/internal/middleware"
	"taskify/backend/internal/models"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type TaskService interface {
	Create(ctx context.Context, owner uuid.UUID, in services.TaskInput) (*models.Task, error)
	Get(ctx context.Context, owner uuid.UUID, id string) (*models.Task, error)
	List(ctx context.Context, owner uuid.UUID, q services.TaskListQuery) (*services.TaskPage, error)
	Update(ctx context.Context, owner uuid.UUID, id string, in services.TaskInput, partial bool) (*models.Task, error)
	Delete(ctx context.Context, owner uuid.UUID, id string) error
}

type TaskHandler struct {
	taskService TaskService
	logger      *slog.Logger
}

func NewTaskHandler(taskService TaskService, logger *slog.Logger) *TaskHandler {
	useJSONFieldNames()
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{taskService: taskService, logger: logger.With("component", "task_handler")}
}

type ListTasksQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=pending in_progress completed"`
	Priority string `form:"priority" binding:"omitempty,oneof=low medium high"`
	DueDate  string `form:"due_date"`
	Search   string `form:"search" binding:"max=255"`
	Ordering string `form:"ordering"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
}

func (h *TaskHandler) owner(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, h.logger, &services.AuthenticationError{Err: services.ErrUserNotFound})
	}
	return id, ok
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}

	var q ListTasksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	page, err := h.taskService.List(c.Request.Context(), userID, services.TaskListQuery{
		Status:   q.Status,
		Priority: q.Priority,
		DueDate:  q.DueDate,
		Search:   q.Search,
		Ordering: q.Ordering,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}

	var in services.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}

	task, err := h.taskService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// UpdateTask handles PUT (title required) and PATCH (any subset of fields).
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}

	var in services.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	partial := c.Request.Method == http.MethodPatch
	task, err := h.taskService.Update(c.Request.Context(), userID, c.Param("id"), in, partial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
