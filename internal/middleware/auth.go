package middleware

import (
	"context"
	"strings"

	"second-brain/auth"
	"second-brain/internal/domain"
	"second-brain/internal/errors"

	"github.com/gin-gonic/gin"
)

const (
	keyUserID = "user_id"
	keyRole   = "user_role"
)

// Principal is what the auth middleware needs to know about a token's owner.
type Principal struct {
	ID           string
	Role         domain.Role
	TokenVersion uint64
	IsActive     bool
}

type UserProvider interface {
	Principal(ctx context.Context, id string) (*Principal, error)
}

type Auth struct {
	Signer      *auth.Signer
	UserService UserProvider
}

// AuthMiddleWare accepts a bearer access token whose version still matches
// the user's; logout bumps the version and kills every outstanding token.
func (m *Auth) AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = ctx.Query("token")
		}
		if token == "" {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		claims, err := m.Signer.VerifyType(token, auth.TokenTypeAccess)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		p, err := m.UserService.Principal(ctx.Request.Context(), claims.UserID)
		if err != nil || !p.IsActive {
			ctx.Error(errors.Unauthorized("Invalid User ID!", err))
			ctx.Abort()
			return
		}

		if p.TokenVersion != claims.TokenVersion {
			ctx.Error(errors.Unauthorized("Invalid token version!", nil))
			ctx.Abort()
			return
		}

		ctx.Set(keyUserID, p.ID)
		ctx.Set(keyRole, p.Role)
		ctx.Next()
	}
}

// RequireRole rejects users below min. It must run after AuthMiddleWare.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !Role(ctx).AtLeast(min) {
			ctx.Error(errors.Forbidden(errors.MsgForbidden, nil))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(keyUserID)
}

func Role(c *gin.Context) domain.Role {
	r, _ := c.Get(keyRole)
	role, _ := r.(domain.Role)
	return role
}

// SetUser is used by handler tests that bypass the token check.
func SetUser(c *gin.Context, id string, role domain.Role) {
	c.Set(keyUserID, id)
	c.Set(keyRole, role)
}
