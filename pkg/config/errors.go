package config

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyURL        = errors.New("API URL cannot be empty")
	ErrInsecureURL     = errors.New("URL must start with 'https://'")
	ErrTrailingSlash   = errors.New("URL must not contain ending /")
	ErrInvalidURL      = errors.New("invalid URL format")
	ErrEmptyOrgName    = errors.New("organization name is required")
	ErrInvalidOrgName  = errors.New("organization name contains only letters, numbers, and dashes")
	ErrEmptyAPIKey     = errors.New("API key is required")
	ErrDuplicateOrg    = errors.New("organization is configured twice")
	ErrNoCredentials   = errors.New("no credentials file configured")
	ErrConnectionCheck = errors.New("connection check failed")
)

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
