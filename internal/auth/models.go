package auth

import "time"

const (
	RoleCourier    = "courier"
	RoleSupervisor = "supervisor"
)

type User struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

type LoginRequest struct {
	EmployeeID string `json:"employee_id"`
	Password   string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
