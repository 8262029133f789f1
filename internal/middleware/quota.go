package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestCounter reports how many generation requests a user has submitted
// since the given instant.
type RequestCounter interface {
	CountForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// TierCap maps a subscription tier to its daily submit cap. Zero means
// uncapped.
type TierCap func(tier string) int

// DailyQuota rejects submits once the user's tier cap for the current UTC
// day is reached. It runs after Auth; an unauthenticated request is a
// programming error and is refused.
func DailyQuota(counter RequestCounter, capFor TierCap) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromCtx(r.Context())
			if user == nil {
				unauthorized(w, "missing authenticated user")
				return
			}
			dailyCap := capFor(user.SubscriptionTier)
			if dailyCap <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			midnight := time.Now().UTC().Truncate(24 * time.Hour)
			count, err := counter.CountForUserSince(r.Context(), user.ID, midnight)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":{"reason":"internal_error","message":"could not check quota"}}`)
				return
			}
			if count >= dailyCap {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":{"reason":"quota_exceeded","message":"daily limit of %d requests reached for tier %s"}}`, dailyCap, user.SubscriptionTier)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
