package core

import "encoding/json"

// Request types

type RegisterRequest struct {
	Username string `json:"username" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"required,max=255,mailbox"`
	Password string `json:"password" validate:"required,max=1024"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

type ProgressRequest struct {
	Email    string          `json:"email" validate:"required,max=255"`
	QuestID  string          `json:"questId" validate:"required,max=255"`
	Progress float64         `json:"progress"`
	Data     json.RawMessage `json:"data,omitempty"` // any JSON value, or a string holding JSON text
}

// Response types

type IDResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Time    int64  `json:"time"`
	Storage string `json:"storage"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
