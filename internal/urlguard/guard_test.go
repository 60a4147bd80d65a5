package urlguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	accepted := []string{
		"https://example.com/blog/",
		"http://example.com/blog?page=2",
		"https://blog.example.co.uk/posts",
		"http://93.184.216.34/blog/",
	}
	for _, raw := range accepted {
		require.NoError(t, Validate(raw), "expected %s to be accepted", raw)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		url  string
	}{
		{"file scheme", "file:///etc/passwd"},
		{"javascript scheme", "javascript:alert(1)"},
		{"data scheme", "data:text/html;base64,PGI+"},
		{"ftp scheme", "ftp://example.com/file.txt"},
		{"localhost", "http://localhost/admin"},
		{"localhost with port", "http://localhost:8080/admin"},
		{"loopback ipv4", "http://127.0.0.1/secret"},
		{"loopback range", "http://127.8.9.10/secret"},
		{"unspecified", "http://0.0.0.0/x/y/z"},
		{"link local metadata", "http://169.254.169.254/latest/meta-data"},
		{"private 10/8", "http://10.0.0.5/internal"},
		{"private 172.16/12", "http://172.16.4.2/internal"},
		{"private 192.168/16", "http://192.168.1.1/router"},
		{"ipv6 loopback", "http://[::1]/internal"},
		{"relative url", "/blog/page/2"},
		{"empty", ""},
		{"too short", "http://a"},
		{"too long", "https://example.com/" + strings.Repeat("a", 2048)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Error(t, Validate(tc.url))
		})
	}
}
