package middleware

import (
	"net/http"

	internal_errors "github.com/counsel-dev/counsel/internal/errors"
	"github.com/counsel-dev/counsel/internal/middleware/ratelimiter"
	"github.com/counsel-dev/counsel/internal/utils"
)

// RateLimit rejects requests once the caller's token bucket is empty. Must
// run inside NeedAuth: the bucket key is the verified identity, never
// anything the client controls.
func RateLimit(limiter *ratelimiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				utils.WriteErrorAndStatusCode(w, &internal_errors.ErrorWithStatusCode{
					Message:    "Not authenticated",
					StatusCode: http.StatusUnauthorized,
				})
				return
			}
			if !limiter.Allow(user.Id) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
