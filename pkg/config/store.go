package config

import (
	"context"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
)

// Provider serves the tenant configuration to the exporter. Implementations
// must be safe for concurrent use.
type Provider interface {
	BaseURL() string
	APIKeyForOrg(org string) (string, bool)
}

type snapshot struct {
	baseURL string
	keys    map[string]string
}

// Store is the default Provider. Reads are lock free; every successful
// change notifies the registered listeners.
type Store struct {
	current   atomic.Pointer[snapshot]
	path      string
	logger    observability.Logger
	mu        sync.Mutex
	listeners []func()
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCredentialsFile sets the file read by Reload.
func WithCredentialsFile(path string) StoreOption {
	return func(s *Store) {
		s.path = path
	}
}

func WithLogger(logger observability.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store holding DefaultBaseURL and no keys.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{logger: noop.NewLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&snapshot{baseURL: DefaultBaseURL, keys: map[string]string{}})
	return s
}

func (s *Store) BaseURL() string {
	return s.current.Load().baseURL
}

func (s *Store) APIKeyForOrg(org string) (string, bool) {
	key, ok := s.current.Load().keys[org]
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Organizations returns the number of configured organizations.
func (s *Store) Organizations() int {
	return len(s.current.Load().keys)
}

// OnChange registers fn to run after every successful change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetBaseURL validates and stores a new API base URL.
func (s *Store) SetBaseURL(url string) error {
	url = strings.TrimSpace(url)
	if err := ValidateURL(url); err != nil {
		return err
	}
	s.update(func(next *snapshot) { next.baseURL = url })
	return nil
}

// SetOrgAPIKeys replaces every organization key.
func (s *Store) SetOrgAPIKeys(keys map[string]string) error {
	for name, key := range keys {
		if err := ValidateOrganization(Organization{Name: name, APIKey: key}); err != nil {
			return err
		}
	}
	s.update(func(next *snapshot) { next.keys = maps.Clone(keys) })
	return nil
}

// Apply replaces the whole configuration with c.
func (s *Store) Apply(c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.update(func(next *snapshot) {
		next.baseURL = c.URL
		next.keys = c.APIKeys()
	})
	return nil
}

// Reload reads the credentials file again. The previous configuration is
// kept when the file is missing or invalid.
func (s *Store) Reload(ctx context.Context) error {
	if s.path == "" {
		return ErrNoCredentials
	}

	c, err := LoadCredentials(s.path)
	if err != nil {
		s.logger.Warn(ctx, "credentials reload failed, keeping previous configuration",
			observability.String("path", s.path),
			observability.Error(err),
		)
		return err
	}

	if err := s.Apply(c); err != nil {
		return err
	}
	s.logger.Info(ctx, "credentials reloaded",
		observability.String("path", s.path),
		observability.Int("organizations", len(c.Organizations)),
	)
	return nil
}

func (s *Store) update(mutate func(*snapshot)) {
	s.mu.Lock()
	prev := s.current.Load()
	next := &snapshot{baseURL: prev.baseURL, keys: prev.keys}
	mutate(next)
	s.current.Store(next)
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
