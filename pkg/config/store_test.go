package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaults(t *testing.T) {
	s := NewStore()

	assert.Equal(t, DefaultBaseURL, s.BaseURL())
	_, ok := s.APIKeyForOrg("acme")
	assert.False(t, ok)
}

func TestStoreSetters(t *testing.T) {
	s := NewStore()
	var changes atomic.Int32
	s.OnChange(func() { changes.Add(1) })

	require.NoError(t, s.SetBaseURL("https://api.example.com"))
	require.NoError(t, s.SetOrgAPIKeys(map[string]string{"acme": "secret"}))

	assert.Equal(t, "https://api.example.com", s.BaseURL())
	key, ok := s.APIKeyForOrg("acme")
	require.True(t, ok)
	assert.Equal(t, "secret", key)
	assert.Equal(t, int32(2), changes.Load())
}

func TestStoreRejectedChangeDoesNotNotify(t *testing.T) {
	s := NewStore()
	var changes atomic.Int32
	s.OnChange(func() { changes.Add(1) })

	assert.ErrorIs(t, s.SetBaseURL("http://insecure"), ErrInsecureURL)
	assert.ErrorIs(t, s.SetOrgAPIKeys(map[string]string{"bad name": "k"}), ErrInvalidOrgName)

	assert.Equal(t, DefaultBaseURL, s.BaseURL())
	assert.Zero(t, changes.Load())
}

func TestStoreSetOrgAPIKeysCopiesInput(t *testing.T) {
	s := NewStore()
	keys := map[string]string{"acme": "secret"}
	require.NoError(t, s.SetOrgAPIKeys(keys))

	keys["acme"] = "changed"

	key, _ := s.APIKeyForOrg("acme")
	assert.Equal(t, "secret", key)
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: https://api.example.com\norganizations:\n  - name: acme\n    api_key: k1\n"), 0o600))
	logger := fake.NewLogger()
	s := NewStore(WithCredentialsFile(path), WithLogger(logger))

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, "https://api.example.com", s.BaseURL())
	assert.Equal(t, 1, s.Organizations())

	require.NoError(t, os.WriteFile(path, []byte("url: http://broken\n"), 0o600))
	assert.Error(t, s.Reload(context.Background()))
	assert.Equal(t, "https://api.example.com", s.BaseURL())
	assert.True(t, logger.Contains(observability.LogLevelWarn, "credentials reload failed, keeping previous configuration"))
}

func TestStoreReloadWithoutFile(t *testing.T) {
	assert.ErrorIs(t, NewStore().Reload(context.Background()), ErrNoCredentials)
}

func TestCheckConnection(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "redirect status", status: http.StatusNotModified},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := CheckConnection(context.Background(), server.Client(), server.URL)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConnectionCheck)
				return
			}
			assert.NoError(t, err)
		})
	}
}
