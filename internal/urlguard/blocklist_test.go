package urlguard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBlocklistEmpty(t *testing.T) {
	t.Parallel()

	require.Nil(t, NewBlocklist(nil))
	require.Nil(t, NewBlocklist([]string{"", "  ", "*."}))

	var b *Blocklist
	require.False(t, b.Blocks("example.com"))
}

func TestBlocklistMatching(t *testing.T) {
	t.Parallel()

	b := NewBlocklist([]string{"ads.example.com", "*.tracker.net", ".spam.org"})
	require.NotNil(t, b)

	cases := []struct {
		host    string
		blocked bool
	}{
		{"ads.example.com", true},
		{"ADS.EXAMPLE.COM", true},
		{"example.com", false},
		{"sub.ads.example.com", false},
		{"tracker.net", true},
		{"cdn.tracker.net", true},
		{"a.b.tracker.net", true},
		{"nottracker.net", false},
		{"spam.org", true},
		{"mail.spam.org", true},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.blocked, b.Blocks(tc.host), "host %q", tc.host)
	}
}

func TestGuardValidate(t *testing.T) {
	t.Parallel()

	g := NewGuard([]string{"*.blocked.example"})

	require.NoError(t, g.Validate("https://blog.example.com/posts"))

	err := g.Validate("https://feed.blocked.example/posts")
	require.Error(t, err)
	require.Contains(t, err.Error(), "blocklist")

	// Built-in checks still apply ahead of the blocklist.
	require.Error(t, g.Validate("http://127.0.0.1/secret"))
}

func TestGuardWithoutBlocklist(t *testing.T) {
	t.Parallel()

	g := NewGuard(nil)
	require.NoError(t, g.Validate("https://blog.example.com/posts"))
	require.Error(t, g.Validate("file:///etc/passwd"))
}
