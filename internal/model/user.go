package model

// User is the authenticated admin returned by the login and /auth/me
// endpoints.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Credentials is the body of POST /auth/logins.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
