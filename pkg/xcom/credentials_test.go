package xcom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrelay/pkg/errors"
)

func TestCredentialBundleValidate(t *testing.T) {
	tests := []struct {
		name    string
		bundle  CredentialBundle
		wantErr bool
	}{
		{
			name:   "valid",
			bundle: CredentialBundle{BearerToken: "b", CSRFToken: "c"},
		},
		{
			name:    "missing bearer",
			bundle:  CredentialBundle{CSRFToken: "c"},
			wantErr: true,
		},
		{
			name:    "whitespace bearer",
			bundle:  CredentialBundle{BearerToken: "   ", CSRFToken: "c"},
			wantErr: true,
		},
		{
			name:    "missing csrf",
			bundle:  CredentialBundle{BearerToken: "b"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bundle.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindInvalidCredentials, errors.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseCookieHeader(t *testing.T) {
	cookies := ParseCookieHeader("auth_token=abc; ct0=def; flag; empty=")
	assert.Equal(t, map[string]string{
		"auth_token": "abc",
		"ct0":        "def",
		"empty":      "",
	}, cookies)

	assert.Empty(t, ParseCookieHeader(""))
}
