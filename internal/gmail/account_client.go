package gmail

import (
	"context"

	"golang.org/x/oauth2"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
)

// AccountClient resolves the signed-in account on every call, so the web
// surface can start before anyone has signed in.
type AccountClient struct {
	oauth  *oauth2.Config
	store  AccountStore
	logger *logger.Logger
}

func NewAccountClient(oauth *oauth2.Config, store AccountStore, logger *logger.Logger) *AccountClient {
	return &AccountClient{
		oauth:  oauth,
		store:  store,
		logger: logger,
	}
}

func (a *AccountClient) client(ctx context.Context) (*Client, error) {
	httpClient, err := NewHTTPClient(context.WithoutCancel(ctx), a.oauth, a.store, a.logger)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, httpClient, a.logger)
}

func (a *AccountClient) FetchPage(ctx context.Context, pageToken string, pageSize, daysBack int) (*model.Page, error) {
	c, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.FetchPage(ctx, pageToken, pageSize, daysBack)
}

func (a *AccountClient) Trash(ctx context.Context, ids []string) ([]string, error) {
	c, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.Trash(ctx, ids)
}

func (a *AccountClient) Untrash(ctx context.Context, ids []string) ([]string, error) {
	c, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.Untrash(ctx, ids)
}

func (a *AccountClient) Ping(ctx context.Context) error {
	c, err := a.client(ctx)
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}
