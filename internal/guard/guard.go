// Package guard gates protected routes on the session state.
package guard

import (
	"net/http"

	"github.com/vindennt/webcarros/internal/session"
)

// LoginPath is where signed-out visitors are sent.
const LoginPath = "/login"

// Decision is the outcome of guarding a protected view.
type Decision int

const (
	// Placeholder: the auth state is not known yet.
	Placeholder Decision = iota
	// Redirect to LoginPath.
	Redirect
	// Render the protected view.
	Render
)

func (d Decision) String() string {
	switch d {
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decide never renders while the auth state is loading.
func Decide(s session.Snapshot) Decision {
	switch {
	case s.LoadingAuth:
		return Placeholder
	case !s.Signed:
		return Redirect
	default:
		return Render
	}
}

// Protect serves next only to signed-in clients. While the client's auth
// state is loading it answers 202 with an empty body and Retry-After, and
// signed-out clients are sent to LoginPath with 303.
// It must run behind session.Manager.Middleware.
func Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := session.FromContext(r.Context())
		if c == nil {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}

		switch Decide(c.Session.Snapshot()) {
		case Placeholder:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusAccepted)
		case Redirect:
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		case Render:
			next.ServeHTTP(w, r)
		}
	})
}
