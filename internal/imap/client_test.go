package imap

import (
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageUIDs(t *testing.T) {
	all := []imap.UID{3, 9, 5, 7, 1}

	first, next, err := PageUIDs(all, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []imap.UID{9, 7}, first)
	assert.Equal(t, "uid:7", next)

	second, next, err := PageUIDs(all, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []imap.UID{5, 3}, second)
	assert.Equal(t, "uid:3", next)

	last, next, err := PageUIDs(all, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []imap.UID{1}, last)
	assert.Empty(t, next)

	// Same token, same page.
	again, _, err := PageUIDs(all, "uid:7", 2)
	require.NoError(t, err)
	assert.Equal(t, second, again)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"abc", "uid:", "uid:0", "uid:-4"} {
		_, err := ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestSnippet(t *testing.T) {
	raw := "From: shop@example.com\r\n" +
		"Subject: Sale\r\n" +
		"Content-Type: multipart/alternative; boundary=b\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: text/html\r\n\r\n<p>ignored</p>\r\n" +
		"--b\r\n" +
		"Content-Type: text/plain\r\n\r\nHuge   sale\r\ntoday only\r\n" +
		"--b--\r\n"

	assert.Equal(t, "Huge sale today only", Snippet([]byte(raw)))
	assert.Empty(t, Snippet(nil))
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "Shop <deals@shop.com>", FormatAddress(imap.Address{Name: "Shop", Mailbox: "deals", Host: "shop.com"}))
	assert.Equal(t, "deals@shop.com", FormatAddress(imap.Address{Mailbox: "deals", Host: "shop.com"}))
}
