package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	data := []byte(`
url: https://api.example.com
organizations:
  - name: acme
    api_key: " key-1 "
  - name: my-org-2
    api_key: key-2
`)

	c, err := ParseCredentials(data)

	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.URL)
	assert.Equal(t, map[string]string{"acme": "key-1", "my-org-2": "key-2"}, c.APIKeys())
}

func TestParseCredentialsDefaultsURL(t *testing.T) {
	c, err := ParseCredentials([]byte("organizations: []\n"))

	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.URL)
}

func TestParseCredentialsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "http url", data: "url: http://api.example.com\n", want: ErrInsecureURL},
		{name: "trailing slash", data: "url: https://api.example.com/\n", want: ErrTrailingSlash},
		{name: "invalid org name", data: "organizations:\n  - name: acme corp\n    api_key: k\n", want: ErrInvalidOrgName},
		{name: "missing key", data: "organizations:\n  - name: acme\n", want: ErrEmptyAPIKey},
		{name: "missing name", data: "organizations:\n  - api_key: k\n", want: ErrEmptyOrgName},
		{name: "duplicate org", data: "organizations:\n  - name: a\n    api_key: k\n  - name: a\n    api_key: j\n", want: ErrDuplicateOrg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentials([]byte(tt.data))

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseCredentialsRejectsMalformedYAML(t *testing.T) {
	_, err := ParseCredentials([]byte("organizations: [\n"))
	assert.Error(t, err)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://api.mergify.com"))
	assert.ErrorIs(t, ValidateURL("   "), ErrEmptyURL)
	assert.ErrorIs(t, ValidateURL("ftp://api.mergify.com"), ErrInsecureURL)
	assert.ErrorIs(t, ValidateURL("https://%zz"), ErrInvalidURL)
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("organizations:\n  - name: acme\n    api_key: k\n"), 0o600))

	c, err := LoadCredentials(path)

	require.NoError(t, err)
	assert.Len(t, c.Organizations, 1)

	_, err = LoadCredentials(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
