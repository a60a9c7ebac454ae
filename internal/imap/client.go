// Package imap is a page source for any IMAP mailbox.
//
// Page tokens are "uid:<n>": the page holds the newest messages with a UID
// below n. Message ids are the Message-ID header, or "uid:<n>" for messages
// without one.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
)

const (
	inbox        = "INBOX"
	tokenPrefix  = "uid:"
	snippetLimit = 200

	defaultTrashFolder = "Trash"
	defaultSubject     = "No Subject"
	defaultSender      = "Unknown Sender"
)

var ErrInvalidToken = errors.New("invalid page token")

type Config struct {
	Host        string
	Port        string
	Username    string
	Password    string
	TLS         bool
	TrashFolder string
}

type Client struct {
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

func NewClient(cfg Config, logger *logger.Logger) *Client {
	return &Client{cfg: cfg, logger: logger, now: time.Now}
}

// connect dials and logs in. The connection is closed when ctx is done.
func (c *Client) connect(ctx context.Context) (*imapclient.Client, func(), error) {
	addr := c.cfg.Host + ":" + c.cfg.Port

	var client *imapclient.Client
	var err error
	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	closeFn := func() {
		stop()
		_ = client.Logout().Wait()
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("authentication failed for %s: %w", c.cfg.Username, err)
	}
	return client, closeFn, nil
}

func (c *Client) FetchPage(ctx context.Context, pageToken string, pageSize, daysBack int) (*model.Page, error) {
	client, closeFn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if _, err := client.Select(inbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	since := c.now().AddDate(0, 0, -daysBack)
	searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids, next, err := PageUIDs(searchData.AllUIDs(), pageToken, pageSize)
	if err != nil {
		return nil, err
	}
	page := &model.Page{NextPageToken: next}
	if len(uids) == 0 {
		return page, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	byUID := make(map[imap.UID]model.EmailSnapshot, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			c.logger.Warn("Failed to read IMAP message:", err)
			continue
		}
		byUID[buf.UID] = snapshotFromBuffer(buf, buf.FindBodySection(bodySection))
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	// Newest first, like the Gmail listing.
	for _, uid := range uids {
		if s, ok := byUID[uid]; ok {
			page.Emails = append(page.Emails, s)
		}
	}
	c.logger.Info("Found", len(page.Emails), "emails on this page")
	return page, nil
}

// PageUIDs selects the newest pageSize UIDs below the token's bound and
// returns them newest first, with the token of the following page.
func PageUIDs(all []imap.UID, pageToken string, pageSize int) ([]imap.UID, string, error) {
	bound, err := ParseToken(pageToken)
	if err != nil {
		return nil, "", err
	}

	candidates := make([]imap.UID, 0, len(all))
	for _, uid := range all {
		if bound == 0 || uid < bound {
			candidates = append(candidates, uid)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] > candidates[j] })

	if pageSize <= 0 || len(candidates) <= pageSize {
		return candidates, "", nil
	}
	page := candidates[:pageSize]
	return page, FormatToken(page[len(page)-1]), nil
}

// ParseToken returns 0 for the first page.
func ParseToken(token string) (imap.UID, error) {
	if token == "" {
		return 0, nil
	}
	raw, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	return imap.UID(n), nil
}

func FormatToken(uid imap.UID) string {
	return tokenPrefix + strconv.FormatUint(uint64(uid), 10)
}

func snapshotFromBuffer(buf *imapclient.FetchMessageBuffer, body []byte) model.EmailSnapshot {
	s := model.EmailSnapshot{
		ID:       FormatToken(buf.UID),
		Subject:  defaultSubject,
		Sender:   defaultSender,
		IsUnread: true,
		Snippet:  Snippet(body),
	}

	if env := buf.Envelope; env != nil {
		if env.MessageID != "" {
			s.ID = env.MessageID
		}
		if env.Subject != "" {
			s.Subject = env.Subject
		}
		if !env.Date.IsZero() {
			s.Date = env.Date.Format(time.RFC1123Z)
		}
		if len(env.From) > 0 {
			s.Sender = FormatAddress(env.From[0])
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			s.IsUnread = false
			break
		}
	}
	return s
}

func FormatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}

// Snippet extracts the first text/plain part of a raw message, collapsed to
// a single line.
func Snippet(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	defer mr.Close()

	var text string
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(part.Body, 4*snippetLimit))
		if err != nil {
			continue
		}
		text = string(body)
		break
	}

	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > snippetLimit {
		text = string(runes[:snippetLimit])
	}
	return text
}

// Trash moves messages from the inbox to the trash folder, stopping at the
// first failure.
func (c *Client) Trash(ctx context.Context, ids []string) ([]string, error) {
	client, closeFn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	trash, err := c.trashFolder(client)
	if err != nil {
		return nil, err
	}
	moved, err := moveMessages(client, inbox, trash, ids)
	c.logger.Info("Moved", len(moved), "emails to", trash)
	return moved, err
}

func (c *Client) Untrash(ctx context.Context, ids []string) ([]string, error) {
	client, closeFn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	trash, err := c.trashFolder(client)
	if err != nil {
		return nil, err
	}
	moved, err := moveMessages(client, trash, inbox, ids)
	c.logger.Info("Restored", len(moved), "emails from", trash)
	return moved, err
}

func (c *Client) Ping(ctx context.Context) error {
	client, closeFn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := client.Select(inbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}
	c.logger.Info("IMAP connection successful for", c.cfg.Username)
	return nil
}

// trashFolder prefers the configured name, then the \Trash special-use
// mailbox, then "Trash".
func (c *Client) trashFolder(client *imapclient.Client) (string, error) {
	if c.cfg.TrashFolder != "" {
		return c.cfg.TrashFolder, nil
	}
	mailboxes, err := client.List("", "*", &imap.ListOptions{ReturnSpecialUse: true}).Collect()
	if err != nil {
		return "", fmt.Errorf("listing mailboxes: %w", err)
	}
	for _, mbox := range mailboxes {
		for _, attr := range mbox.Attrs {
			if attr == imap.MailboxAttrTrash {
				return mbox.Mailbox, nil
			}
		}
	}
	return defaultTrashFolder, nil
}

func moveMessages(client *imapclient.Client, from, to string, ids []string) ([]string, error) {
	if _, err := client.Select(from, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", from, err)
	}

	moved := make([]string, 0, len(ids))
	for _, id := range ids {
		// UIDs are per mailbox, so a uid: id only identifies inbox messages.
		if from != inbox && strings.HasPrefix(id, tokenPrefix) {
			return moved, fmt.Errorf("message %s has no Message-ID and cannot be found in %s", id, from)
		}
		uid, err := resolveUID(client, id)
		if err != nil {
			return moved, err
		}
		if _, err := client.Move(imap.UIDSetNum(uid), to).Wait(); err != nil {
			return moved, fmt.Errorf("moving %s to %s: %w", id, to, err)
		}
		moved = append(moved, id)
	}
	return moved, nil
}

// resolveUID finds the message in the selected mailbox.
func resolveUID(client *imapclient.Client, id string) (imap.UID, error) {
	if strings.HasPrefix(id, tokenPrefix) {
		return ParseToken(id)
	}
	data, err := client.UIDSearch(&imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Message-ID", Value: id}},
	}, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("searching for %s: %w", id, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, fmt.Errorf("message %s not found", id)
	}
	return uids[0], nil
}
