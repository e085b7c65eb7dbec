package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	tests := []struct {
		name     string
		key      Key
		expected string
	}{
		{
			name:     "primary token key",
			key:      Token("1", "Alice", "org1"),
			expected: "\x00nft\x001\x00Alice\x00org1\x00",
		},
		{
			name:     "sub record key",
			key:      TokenSub("1", "Alice", "org1", SubTicketData),
			expected: "\x00nft\x001\x00Alice\x00org1\x00ticketdata\x00",
		},
		{
			name:     "kind-only key",
			key:      Registry(),
			expected: "\x00orgadmin\x00",
		},
		{
			name:     "meta key",
			key:      Meta(),
			expected: "\x00contractmeta\x00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.key.String())
		})
	}
}

func TestKeyPrefixes(t *testing.T) {
	full := Token("1", "Alice", "org1").String()
	sub := TokenSub("1", "Alice", "org1", SubStockInfo).String()

	assert.True(t, strings.HasPrefix(full, TokenPrefix("1").String()))
	assert.True(t, strings.HasPrefix(sub, TokenPrefix("1").String()))
	assert.True(t, strings.HasPrefix(full, AllTokens().String()))

	// A token ID that extends another must not collide on prefix scans
	assert.False(t, strings.HasPrefix(Token("10", "Alice", "org1").String(), TokenPrefix("1").String()))

	assert.True(t, strings.HasPrefix(Refund("o1", "r1").String(), RefundPrefix("o1").String()))
	assert.False(t, strings.HasPrefix(Refund("o10", "r1").String(), RefundPrefix("o1").String()))
}

func TestIsTokenPrimary(t *testing.T) {
	assert.True(t, IsTokenPrimary(Token("1", "Alice", "org1")))
	assert.False(t, IsTokenPrimary(TokenSub("1", "Alice", "org1", SubBasicInfo)))
	assert.False(t, IsTokenPrimary(TokenIndex("1")))
	assert.False(t, IsTokenPrimary(TokenPrefix("1")))
}

func TestParseRoundTrip(t *testing.T) {
	keys := []Key{
		Token("1", "Alice", "org1"),
		TokenSub("1", "Alice", "org1", SubPriceInfo),
		TokenIndex("1"),
		Registry(),
		Tx("0b8a5a35-9bb5-4849-b3f8-3a5cf2b8a6bc"),
		Trade("T-100"),
		Order("o1"),
		Refund("o1", "r1"),
		Credit("acct-1", "m1"),
		Payment("sn-1"),
		Evidence("ev-1"),
		Meta(),
	}

	for _, k := range keys {
		parsed, err := Parse(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"", "nft", "\x00nft", "nft\x00", "\x00\x00"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{name: "primary key", key: Token("1", "Alice", "org1"), wantErr: false},
		{name: "empty kind", key: Key{}, wantErr: true},
		{name: "empty segment", key: Key{Kind: KindNFT, Segments: []string{""}}, wantErr: true},
		{name: "separator in segment", key: Key{Kind: KindNFT, Segments: []string{"a\x00b"}}, wantErr: true},
		{name: "control character in segment", key: Key{Kind: KindNFT, Segments: []string{"a\x01b"}}, wantErr: true},
		{name: "unicode segment", key: Key{Kind: KindNFT, Segments: []string{"测试"}}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Valid()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
