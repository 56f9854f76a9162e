package models

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type ResetPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// TokenResponse is returned by login and signup. AccessToken is empty when
// the account still needs email confirmation.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type SetAdminRequest struct {
	IsAdmin *bool `json:"is_admin" binding:"required"`
}

// UserQuery is the admin listing filter.
type UserQuery struct {
	Page    int    `form:"page"`
	PerPage int    `form:"per_page"`
	Search  string `form:"search"`
	Role    string `form:"role"`
}

type Message struct {
	Message string `json:"message"`
}
