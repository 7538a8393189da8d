package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostIsIP(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"192.0.2.10", true},
		{"2001:db8::1", true},
		{"[2001:db8::1]", true},
		{"::1", true},
		{"example.com", false},
		{"192.0.2", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, HostIsIP(tt.host))
		})
	}
}

func TestStripBrackets(t *testing.T) {
	assert.Equal(t, "::1", StripBrackets("[::1]"))
	assert.Equal(t, "2001:db8::1", StripBrackets("[2001:db8::1]"))
	assert.Equal(t, "example.com", StripBrackets("example.com"))
	assert.Equal(t, "[", StripBrackets("["))
	assert.Equal(t, "", StripBrackets(""))
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "10.0.0.0/24", FirstToken("  10.0.0.0/24 rest of line"))
	assert.Equal(t, "example.com", FirstToken("example.com"))
	assert.Equal(t, "", FirstToken("   "))
	assert.Equal(t, "", FirstToken(""))
}

func TestLooksLikeCIDR(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"10.0.0.0/24", true},
		{"2001:db8::/32", true},
		{"10.0.0.0/128", true},
		{"not-an-ip/8", true}, // syntactic check only, resolution comes later
		{"10.0.0.0/129", false},
		{"10.0.0.0/1234", false},
		{"10.0.0.0/2a", false},
		{"10.0.0.0/", false},
		{"/24", false},
		{"10.0.0.0", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeCIDR(tt.token))
		})
	}
}

func TestSplitHostPortLenient(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{"example.com:8443", "example.com", 8443},
		{"example.com", "example.com", 0},
		{"[::1]:9090", "::1", 9090},
		{"[::1]", "::1", 0},
		{"2001:db8::1", "2001:db8::1", 0},
		{"example.com:notaport", "example.com", 0},
		{"example.com:99999", "example.com", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port := SplitHostPortLenient(tt.in)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}
