package intake

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestMessage(t *testing.T, raw string) *mail.Message {
	t.Helper()
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)
	return msg
}

func TestExtractTextFromPlainMessage(t *testing.T) {
	msg := parseTestMessage(t, "From: a@b.example\r\nSubject: hi\r\n\r\nplain body here\r\n")

	text, err := extractTextFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "plain body here\r\n", text)
}

func TestExtractTextFromMultipartKeepsOnlyTextPlain(t *testing.T) {
	raw := "From: a@b.example\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"first part\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<b>ignored</b>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"second part\r\n" +
		"--XYZ--\r\n"

	text, err := extractTextFromMessage(parseTestMessage(t, raw))
	require.NoError(t, err)
	assert.Contains(t, text, "first part")
	assert.Contains(t, text, "second part")
	assert.NotContains(t, text, "ignored")
}

func TestExtractTextFromMultipartWithoutTextParts(t *testing.T) {
	raw := "From: a@b.example\r\n" +
		"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: application/pdf\r\n" +
		"\r\n" +
		"%PDF-1.4\r\n" +
		"--XYZ--\r\n"

	text, err := extractTextFromMessage(parseTestMessage(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "[No text content found in multipart message]", text)
}

func TestDecodeEncodedHeader(t *testing.T) {
	decoded, err := decodeEncodedHeader("=?UTF-8?Q?Gesch=C3=A4ftsbericht?=")
	require.NoError(t, err)
	assert.Equal(t, "Geschäftsbericht", decoded)

	plain, err := decodeEncodedHeader("Plain subject")
	require.NoError(t, err)
	assert.Equal(t, "Plain subject", plain)
}

func TestHasAttachments(t *testing.T) {
	mixed := parseTestMessage(t, "Content-Type: multipart/mixed; boundary=X\r\n\r\nbody\r\n")
	assert.True(t, hasAttachments(mixed))

	alt := parseTestMessage(t, "Content-Type: multipart/alternative; boundary=X\r\n\r\nbody\r\n")
	assert.False(t, hasAttachments(alt))

	plain := parseTestMessage(t, "From: a@b.example\r\n\r\nbody\r\n")
	assert.False(t, hasAttachments(plain))
}

func TestStampHeadersPrependsTriageResultAndKeepsBody(t *testing.T) {
	raw := []byte("From: boss@corp.example\r\nSubject: budget\r\n\r\nthe body\r\nsecond line\r\n")
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	outcome := &Outcome{
		Category:    "wichtig",
		Importance:  0.9,
		Confidence:  0.88,
		Layer:       "rules",
		NeedsReview: true,
	}

	stamped := string(stampHeaders(msg, raw, outcome, nil))

	assert.True(t, strings.HasPrefix(stamped, "X-Triage-Category: wichtig\r\n"))
	assert.Contains(t, stamped, "X-Triage-Importance: 0.9000\r\n")
	assert.Contains(t, stamped, "X-Triage-Confidence: 0.8800\r\n")
	assert.Contains(t, stamped, "X-Triage-Layer: rules\r\n")
	assert.Contains(t, stamped, "X-Triage-Review: true\r\n")
	assert.NotContains(t, stamped, "X-Triage-Error")
	assert.Contains(t, stamped, "Subject: budget\r\n")
	assert.True(t, strings.HasSuffix(stamped, "\r\n\r\nthe body\r\nsecond line\r\n"))
}

func TestStampHeadersRecordsTriageError(t *testing.T) {
	raw := []byte("From: a@b.example\n\nbody\n")
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	outcome := &Outcome{Category: "nice_to_know", Importance: 0.5, Layer: "error"}
	stamped := string(stampHeaders(msg, raw, outcome, assert.AnError))

	assert.Contains(t, stamped, "X-Triage-Error: "+assert.AnError.Error()+"\r\n")
	assert.NotContains(t, stamped, "X-Triage-Review")
	// Bare-LF messages still get their body carried over.
	assert.True(t, strings.HasSuffix(stamped, "\r\n\r\nbody\n"))
}
