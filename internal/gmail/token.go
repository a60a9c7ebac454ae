package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
)

// ErrNotSignedIn means no Gmail account has been stored yet.
var ErrNotSignedIn = errors.New("no Gmail account signed in, visit /auth/google first")

// Scopes requested for the mailbox: read plus trash/untrash.
var Scopes = []string{
	gmailapi.GmailModifyScope,
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// AccountStore persists the signed-in account and its tokens.
type AccountStore interface {
	LoadAccount() (*model.Account, error)
	SaveAccount(account *model.Account) error
}

func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// NewHTTPClient returns an authorized client for the stored account. Refreshed
// tokens are written back to the store.
func NewHTTPClient(ctx context.Context, cfg *oauth2.Config, store AccountStore, logger *logger.Logger) (*http.Client, error) {
	account, err := store.LoadAccount()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	if account.RefreshToken == "" && account.AccessToken == "" {
		return nil, ErrNotSignedIn
	}

	base := cfg.TokenSource(ctx, AccountToken(account))
	src := &persistingTokenSource{
		base:    base,
		store:   store,
		account: account,
		last:    account.AccessToken,
		logger:  logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(AccountToken(account), src)), nil
}

func AccountToken(account *model.Account) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		Expiry:       account.TokenExpiry,
		TokenType:    "Bearer",
	}
}

type persistingTokenSource struct {
	base    oauth2.TokenSource
	store   AccountStore
	logger  *logger.Logger
	mu      sync.Mutex
	account *model.Account
	last    string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh Gmail token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken == p.last {
		return token, nil
	}

	p.last = token.AccessToken
	p.account.AccessToken = token.AccessToken
	p.account.TokenExpiry = token.Expiry
	if token.RefreshToken != "" {
		p.account.RefreshToken = token.RefreshToken
	}
	p.account.UpdatedAt = time.Now()
	if err := p.store.SaveAccount(p.account); err != nil {
		p.logger.Warn("Failed to persist refreshed Gmail token:", err)
	} else {
		p.logger.Debug("Persisted refreshed Gmail token for", p.account.Email)
	}
	return token, nil
}
