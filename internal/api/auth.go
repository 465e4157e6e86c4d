package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// ActorHeader carries the id of the person a request acts for. The bearer
// token authenticates the caller; the caller is trusted to name the actor.
const ActorHeader = "X-Person-ID"

type actorKey struct{}

// BearerAuth rejects requests without the shared token. An empty token
// disables the check. When allowQuery is set the token may also arrive as
// the access_token query parameter, which browsers need for websockets.
func BearerAuth(token string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := ""
			const prefix = "Bearer "
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
				got = auth[len(prefix):]
			} else if allowQuery {
				got = r.URL.Query().Get("access_token")
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor reads the acting person from ActorHeader, or the person_id
// query parameter, and stores it on the request context.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ActorHeader))
		if id == "" {
			id = strings.TrimSpace(r.URL.Query().Get("person_id"))
		}
		if id == "" {
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing %s header", ActorHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, id)))
	})
}

func actorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
