package handler

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"

	"inbox-triage/internal/gmail"
	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
)

// AccountStore keeps the signed-in Gmail account.
type AccountStore interface {
	gmail.AccountStore
	DeleteAccount() error
}

// AuthHandler signs the mailbox owner in with Google and stores the tokens
// the Gmail client refreshes from.
type AuthHandler struct {
	accounts AccountStore
	flash    flasher
	logger   *logger.Logger
}

func NewAuthHandler(clientID, clientSecret, baseURL string, store sessions.Store, accounts AccountStore, logger *logger.Logger) *AuthHandler {
	gothic.Store = store

	provider := google.New(clientID, clientSecret, baseURL+"/auth/google/callback", gmail.Scopes...)
	// without consent Google omits the refresh token on repeat sign-ins
	provider.SetPrompt("consent")
	goth.UseProviders(provider)

	return &AuthHandler{
		accounts: accounts,
		flash:    flasher{store: store},
		logger:   logger,
	}
}

// BeginAuthHandler initiates the OAuth flow
func (h *AuthHandler) BeginAuthHandler(c echo.Context) error {
	provider := c.Param("provider")
	if provider != "google" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid provider",
		})
	}

	gothic.BeginAuthHandler(c.Response(), withProvider(c.Request()))
	return nil
}

// CallbackHandler handles the OAuth callback
func (h *AuthHandler) CallbackHandler(c echo.Context) error {
	googleUser, err := gothic.CompleteUserAuth(c.Response(), withProvider(c.Request()))
	if err != nil {
		h.logger.Error("Failed to complete user auth:", err)
		h.flash.add(c, flashError, "Google sign-in failed")
		return c.Redirect(http.StatusSeeOther, "/")
	}

	account := model.NewAccount(
		googleUser.Email,
		googleUser.Name,
		googleUser.AccessToken,
		googleUser.RefreshToken,
		googleUser.ExpiresAt,
	)
	if account.RefreshToken == "" {
		if previous, err := h.accounts.LoadAccount(); err == nil && previous.Email == account.Email {
			account.RefreshToken = previous.RefreshToken
		}
	}
	if err := h.accounts.SaveAccount(account); err != nil {
		h.logger.Error("Failed to store account:", err)
		h.flash.add(c, flashError, "Failed to store Gmail credentials")
		return c.Redirect(http.StatusSeeOther, "/")
	}

	h.logger.Info("Signed in Gmail account", account.Email)
	h.flash.add(c, flashSuccess, "Signed in as "+account.Email)
	return c.Redirect(http.StatusSeeOther, "/")
}

// LogoutHandler forgets the stored account
func (h *AuthHandler) LogoutHandler(c echo.Context) error {
	if err := gothic.Logout(c.Response(), withProvider(c.Request())); err != nil {
		h.logger.Warn("Failed to clear auth session:", err)
	}
	if err := h.accounts.DeleteAccount(); err != nil {
		h.logger.Error("Failed to delete stored account:", err)
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// withProvider sets the provider query parameter gothic looks for.
func withProvider(req *http.Request) *http.Request {
	q := req.URL.Query()
	q.Set("provider", "google")
	req.URL.RawQuery = q.Encode()
	return req
}
