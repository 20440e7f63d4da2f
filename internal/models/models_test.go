package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_PublicOmitsPassword(t *testing.T) {
	user := models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    "a@x.com",
		Name:     "Alice",
		Password: "$2a$10$hash",
		IsActive: true,
	}

	raw, err := json.Marshal(user.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
	assert.NotContains(t, string(raw), "$2a$10$hash")

	raw, err = json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "$2a$10$hash")
}

func TestUser_BeforeCreateAssignsID(t *testing.T) {
	user := models.User{Email: "a@x.com"}
	require.NoError(t, user.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, user.ID)

	id := uuid.Must(uuid.NewV4())
	task := models.Task{ID: id}
	require.NoError(t, task.BeforeCreate(nil))
	assert.Equal(t, id, task.ID)
}

func TestTask_MarshalDueDate(t *testing.T) {
	due := time.Date(2030, 5, 17, 0, 0, 0, 0, time.UTC)
	task := models.Task{
		ID:       uuid.Must(uuid.NewV4()),
		UserID:   uuid.Must(uuid.NewV4()),
		Title:    "Buy milk",
		Status:   models.StatusPending,
		Priority: models.PriorityMedium,
		DueDate:  &due,
	}

	raw, err := json.Marshal(task)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "2030-05-17", body["due_date"])
	assert.Equal(t, task.UserID.String(), body["user"])
	assert.Equal(t, "Buy milk", body["title"])
	assert.Nil(t, body["description"])

	task.DueDate = nil
	raw, err = json.Marshal(task)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Nil(t, body["due_date"])
}

func TestBlacklistedToken_TableName(t *testing.T) {
	assert.Equal(t, "token_blacklist", models.BlacklistedToken{}.TableName())
}
