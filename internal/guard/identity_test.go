package guard

import (
	"net/http/httptest"
	"testing"
)

func TestIdentityWithoutProxyTrustIgnoresHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:54321"
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.Header.Set("CF-Connecting-IP", "10.0.0.2")

	if got := Identity(r, false); got != "203.0.113.9" {
		t.Errorf("identity = %q, want TCP peer address", got)
	}
}

func TestIdentityHeaderPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			"cloudflare header wins",
			map[string]string{
				"CF-Connecting-IP": "198.51.100.1",
				"X-Forwarded-For":  "198.51.100.2",
				"X-Real-IP":        "198.51.100.3",
			},
			"198.51.100.1",
		},
		{
			"first forwarded entry",
			map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1, 10.0.0.2"},
			"198.51.100.2",
		},
		{
			"real ip fallback",
			map[string]string{"X-Real-IP": " 198.51.100.3 "},
			"198.51.100.3",
		},
		{
			"no headers falls back to peer",
			map[string]string{},
			"203.0.113.9",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "203.0.113.9:54321"
			for k, v := range test.headers {
				r.Header.Set(k, v)
			}
			if got := Identity(r, true); got != test.want {
				t.Errorf("identity = %q, want %q", got, test.want)
			}
		})
	}
}
