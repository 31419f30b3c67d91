package models

import (
	"time"

	"github.com/google/uuid"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // sync.started, sync.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// App Store sync trigger
type SyncRequest struct {
	Action string `json:"action"` // sync-all, sync-sales, sync-reviews, sync-metrics
}

// Identity / session models
type User struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;column:id"`
	Email        string    `json:"email" gorm:"uniqueIndex;column:email"`
	Name         string    `json:"name" gorm:"column:name"`
	Role         string    `json:"role" gorm:"column:role"` // admin, viewer
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
}

func (User) TableName() string {
	return "users"
}

type BootstrapRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
