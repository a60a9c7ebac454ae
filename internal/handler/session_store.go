package handler

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const (
	sessionName = "inbox_triage"

	flashSuccess = "success"
	flashWarning = "warning"
	flashError   = "error"
)

// NewSessionStore creates a new cookie store for sessions
func NewSessionStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30, // 30 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

type flasher struct {
	store sessions.Store
}

func (f flasher) add(c echo.Context, kind, message string) {
	session, err := f.store.Get(c.Request(), sessionName)
	if err != nil && session == nil {
		return
	}
	session.AddFlash(message, kind)
	_ = session.Save(c.Request(), c.Response())
}

func (f flasher) pop(c echo.Context) []Flash {
	session, err := f.store.Get(c.Request(), sessionName)
	if err != nil && session == nil {
		return nil
	}

	var out []Flash
	for _, kind := range []string{flashSuccess, flashWarning, flashError} {
		for _, msg := range session.Flashes(kind) {
			if s, ok := msg.(string); ok {
				out = append(out, Flash{Kind: kind, Message: s})
			}
		}
	}
	if len(out) > 0 {
		_ = session.Save(c.Request(), c.Response())
	}
	return out
}
