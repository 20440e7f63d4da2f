package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// BlacklistedToken records a revoked refresh token by its jti. Rows are kept
// until the token would have expired anyway.
type BlacklistedToken struct {
	ID        uint      `gorm:"primaryKey"`
	JTI       string    `gorm:"column:jti;size:64;uniqueIndex;not null"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (BlacklistedToken) TableName() string {
	return "token_blacklist"
}
