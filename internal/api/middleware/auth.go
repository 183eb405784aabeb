package middleware

import (
	"net/http"
	"strings"

	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key holding the authenticated user ID.
const userIDKey = "userID"

// Authenticator resolves a bearer token to a user ID.
type Authenticator interface {
	// Authenticate returns the user ID for a token, or false when the
	// token is unknown.
	Authenticate(token string) (string, bool)
}

// StaticTokenAuthenticator authenticates against a fixed token-to-user
// table from configuration.
type StaticTokenAuthenticator struct {
	tokens map[string]string
}

// NewStaticTokenAuthenticator creates an authenticator over a token table.
// Parameters:
//   - tokens: map of API token to user ID.
// Returns:
//   - *StaticTokenAuthenticator: initialized authenticator.
func NewStaticTokenAuthenticator(tokens map[string]string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{tokens: tokens}
}

// Authenticate looks the token up in the configured table.
func (a *StaticTokenAuthenticator) Authenticate(token string) (string, bool) {
	userID, ok := a.tokens[token]
	return userID, ok
}

// RequireAuth returns a middleware that rejects requests without a valid
// bearer token and stores the resolved user ID for handlers. The token is
// also accepted from the "token" query parameter so EventSource clients,
// which cannot set headers, can authenticate stream requests.
// Parameters:
//   - auth: token resolver.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required.",
			})
			return
		}

		userID, ok := auth.Authenticate(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authentication token.",
			})
			return
		}

		c.Set(userIDKey, userID)
		ctx := logger.SetUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// UserID returns the authenticated user ID set by RequireAuth.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - string: user ID, or "" when the request is unauthenticated.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
