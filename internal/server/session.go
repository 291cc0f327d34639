package server

import (
	"net/http"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/session"
)

// session returns the visitor's session, issuing a cookie on first contact.
// It returns nil when the server runs without a session store.
func (s *Server) session(w http.ResponseWriter, r *http.Request) experiment.Session {
	if s.sessions == nil {
		return nil
	}

	if c, err := r.Cookie(s.cookie); err == nil && session.ValidID(c.Value) {
		return s.sessions(c.Value)
	}

	id := session.NewID()
	cookie := &http.Cookie{
		Name:     s.cookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookieTTL > 0 {
		cookie.MaxAge = int(s.cookieTTL.Seconds())
	}
	http.SetCookie(w, cookie)

	return s.sessions(id)
}
