package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/jwt"
	"github.com/counsel-dev/counsel/internal/utils"
)

// Key to store the verified identity in the request context
type key int

const UserKey key = 0

var errNoToken = errors.New("no identity token")

// Auth extracts the externally issued (userID, role) identity from each
// request. It performs no authentication beyond signature verification; the
// identity provider owns credentials.
type Auth struct {
	identity jwt.Service
}

func NewAuth(identity jwt.Service) *Auth {
	return &Auth{identity: identity}
}

// NeedAuth returns middleware that requires a verified identity.
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return a.auth(false)
}

// ModeratorOnly returns middleware that additionally requires a moderation role.
func (a *Auth) ModeratorOnly() func(http.Handler) http.Handler {
	return a.auth(true)
}

func (a *Auth) auth(moderatorOnly bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.extractUser(r)
			if err != nil {
				if errors.Is(err, errNoToken) {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				utils.WriteErrorAndStatusCode(w, err)
				return
			}
			if moderatorOnly && !user.Role.Moderates() {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Auth) extractUser(r *http.Request) (*domain.User, error) {
	// Cookie for browser clients, Authorization header for API clients.
	var tokenString string
	if accessCookie, err := r.Cookie("accessToken"); err == nil {
		tokenString = accessCookie.Value
	} else if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		tokenString = token
	}
	if tokenString == "" {
		return nil, errNoToken
	}

	user, err := a.identity.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserFromContext returns the verified identity, or nil outside NeedAuth.
func GetUserFromContext(r *http.Request) *domain.User {
	user, ok := r.Context().Value(UserKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}
