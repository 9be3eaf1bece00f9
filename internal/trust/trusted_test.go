package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckerExactAndParentMatch(t *testing.T) {
	c, err := NewChecker([]string{"example.com", "Corp.Example "}, "", zap.NewNop())
	require.NoError(t, err)

	assert.True(t, c.IsTrusted("example.com"))
	assert.True(t, c.IsTrusted("EXAMPLE.COM"))
	assert.True(t, c.IsTrusted("mail.example.com"))
	assert.True(t, c.IsTrusted("a.b.mail.example.com"))
	assert.True(t, c.IsTrusted("corp.example"))

	assert.False(t, c.IsTrusted("example.org"))
	assert.False(t, c.IsTrusted("notexample.com.evil.net"))
	assert.False(t, c.IsTrusted(""))
	// A trusted child must not vouch for the parent.
	assert.False(t, c.IsTrusted("com"))
}

func TestCheckerLoadsDomainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.txt")
	content := "# internal senders\npartner.example\n\n  billing.example  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := NewChecker(nil, path, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, c.IsTrusted("partner.example"))
	assert.True(t, c.IsTrusted("billing.example"))
	assert.False(t, c.IsTrusted("internal"))
}

func TestCheckerMissingFileFails(t *testing.T) {
	_, err := NewChecker(nil, filepath.Join(t.TempDir(), "absent.txt"), zap.NewNop())
	assert.Error(t, err)
}
