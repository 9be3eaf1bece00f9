package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const truncationMarker = "\n[... Content truncated due to size limits ...]"

func TestTruncateTextShortInputUntouched(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "hello", tp.TruncateText("hello", 100))
	assert.Equal(t, "hello", tp.TruncateText("hello", 5))
}

func TestTruncateTextDisabledWhenMaxSizeNonPositive(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	long := strings.Repeat("x", 10_000)

	assert.Equal(t, long, tp.TruncateText(long, 0))
	assert.Equal(t, long, tp.TruncateText(long, -1))
}

func TestTruncateTextAppendsMarker(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	got := tp.TruncateText(strings.Repeat("a", 50), 10)
	assert.Equal(t, strings.Repeat("a", 10)+truncationMarker, got)
}

func TestTruncateTextNeverSplitsRune(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	// "ä" is two bytes; cutting at 3 would land mid-rune.
	got := tp.TruncateText("aääa", 3)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "aä"+truncationMarker, got)
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "clean", tp.SanitizeUTF8("clean"))
	assert.Equal(t, "brokentext", tp.SanitizeUTF8("broken\xfftext"))
}
