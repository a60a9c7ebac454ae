package gmail

import (
	"context"
	"sync"

	"inbox-triage/internal/model"
)

// MockClient is a mailbox for tests. Pages are served from the Pages map,
// keyed by page token ("" is the first page), unless a Func field is set.
type MockClient struct {
	FetchPageFunc func(ctx context.Context, pageToken string, pageSize, daysBack int) (*model.Page, error)
	TrashFunc     func(ctx context.Context, ids []string) ([]string, error)
	UntrashFunc   func(ctx context.Context, ids []string) ([]string, error)
	PingFunc      func(ctx context.Context) error

	Pages map[string]*model.Page

	mu          sync.Mutex
	fetched     []string
	trashCalls  [][]string
	untrashCall [][]string
}

func NewMockClient() *MockClient {
	return &MockClient{Pages: make(map[string]*model.Page)}
}

func (m *MockClient) FetchPage(ctx context.Context, pageToken string, pageSize, daysBack int) (*model.Page, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, pageToken)
	m.mu.Unlock()

	if m.FetchPageFunc != nil {
		return m.FetchPageFunc(ctx, pageToken, pageSize, daysBack)
	}

	// Default mock behavior: serve the configured page, or an empty one
	page, ok := m.Pages[pageToken]
	if !ok {
		return &model.Page{}, nil
	}
	return page, nil
}

func (m *MockClient) Trash(ctx context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	m.trashCalls = append(m.trashCalls, append([]string(nil), ids...))
	m.mu.Unlock()

	if m.TrashFunc != nil {
		return m.TrashFunc(ctx, ids)
	}
	return ids, nil
}

func (m *MockClient) Untrash(ctx context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	m.untrashCall = append(m.untrashCall, append([]string(nil), ids...))
	m.mu.Unlock()

	if m.UntrashFunc != nil {
		return m.UntrashFunc(ctx, ids)
	}
	return ids, nil
}

func (m *MockClient) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// FetchedTokens lists the page tokens requested so far, in order.
func (m *MockClient) FetchedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

func (m *MockClient) TrashCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.trashCalls...)
}

func (m *MockClient) UntrashCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.untrashCall...)
}
