package domain

// Role is the authorization tier of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Level ranks roles user < moderator < admin. Unknown roles rank 0.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants at least the access of min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level() && r.Level() > 0
}

// User is the identity returned by the auth endpoints.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	Provider   string `json:"provider,omitempty"`
	IsVerified bool   `json:"isVerified"`
}

// Credentials is the sign-in payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up payload.
type Registration struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair is an access token and the refresh token that renews it.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login, register and OAuth code exchange.
type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
