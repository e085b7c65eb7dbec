package identity

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	caller := Caller{Org: "org1", ID: "admin"}
	ctx := WithCaller(context.Background(), caller)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, caller, got)

	_, err = FromContext(context.Background())
	require.EqualError(t, err, "no caller identity in context")

	// An incomplete caller is treated as absent
	_, err = FromContext(WithCaller(context.Background(), Caller{Org: "org1"}))
	require.Error(t, err)
}

func TestParseSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    Caller
		wantErr bool
	}{
		{
			name:    "full certificate subject",
			subject: "x509::/C=US/ST=CA/O=org1/CN=admin::/C=US/O=ca.org1/CN=ca",
			want:    Caller{Org: "org1", ID: "admin"},
		},
		{
			name:    "single distinguished name",
			subject: "x509::/O=org2/CN=operator",
			want:    Caller{Org: "org2", ID: "operator"},
		},
		{
			name:    "bare distinguished name without prefix",
			subject: "/O=org1/CN=admin",
			want:    Caller{Org: "org1", ID: "admin"},
		},
		{
			name:    "missing CN",
			subject: "x509::/C=US/O=org1",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubject(tt.subject)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromClaims(t *testing.T) {
	caller, err := FromClaims(&jwt.RegisteredClaims{Issuer: "org1", Subject: "admin"})
	require.NoError(t, err)
	assert.Equal(t, Caller{Org: "org1", ID: "admin"}, caller)

	_, err = FromClaims(nil)
	require.Error(t, err)
	_, err = FromClaims(&jwt.RegisteredClaims{Issuer: "org1"})
	require.EqualError(t, err, "claims missing issuer or subject")
	_, err = FromClaims(&jwt.RegisteredClaims{Subject: "admin"})
	require.Error(t, err)
}
