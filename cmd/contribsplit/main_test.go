package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContributor(t *testing.T) {
	tests := []struct {
		in      string
		handle  string
		share   string
		address string
		wantErr bool
	}{
		{in: "alice=60", handle: "alice", share: "60"},
		{in: "bob=33.5@1BoatSLRHtKNngkdXEeobR76b53LETtpyT", handle: "bob", share: "33.5", address: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"},
		{in: "alice", wantErr: true},
		{in: "=50", wantErr: true},
		{in: "alice=lots", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := parseContributor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.handle, c.Handle)
			assert.True(t, c.Share.Equal(decimal.RequireFromString(tt.share)))
			assert.Equal(t, tt.address, c.SettlementAddress)
		})
	}
}

func TestParseShares(t *testing.T) {
	got, err := parseShares([]string{"alice=70", "bob=30"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, got["alice"].Equal(decimal.NewFromInt(70)))

	_, err = parseShares([]string{"alice=70@1BoatSLRHtKNngkdXEeobR76b53LETtpyT"})
	assert.Error(t, err)
}

func TestParseRepo(t *testing.T) {
	owner, repo, err := parseRepo("acme/widget")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", repo)

	for _, bad := range []string{"acme", "/widget", "acme/", "a/b/c"} {
		_, _, err := parseRepo(bad)
		assert.Error(t, err, bad)
	}
}

func TestRedact(t *testing.T) {
	assert.Empty(t, redact(""))
	assert.Equal(t, "********", redact("secret"))
}
