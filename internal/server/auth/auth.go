// Package auth holds the request/identity types used by the dashboard
// backend's JWT middleware.
package auth

// LoginRequest is the credential payload posted to the authentication
// endpoint by the frontend.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// AuthorizedUser is the identity carried in JWT claims once a login has been
// accepted. The backend only knows a single admin user.
type AuthorizedUser struct {
	Username string `json:"username"`
}
