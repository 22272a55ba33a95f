package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is used when the credentials file does not name one.
const DefaultBaseURL = "https://api.mergify.com"

var orgName = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Credentials is the content of the credentials file.
//
//	url: https://api.mergify.com
//	organizations:
//	  - name: my-org
//	    api_key: xxx
type Credentials struct {
	URL           string         `yaml:"url"`
	Organizations []Organization `yaml:"organizations"`
}

// Organization binds an organization name to its API key.
type Organization struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
}

// ParseCredentials decodes and validates a credentials document. A missing
// url falls back to DefaultBaseURL.
func ParseCredentials(data []byte) (Credentials, error) {
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode credentials: %w", err)
	}

	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		c.URL = DefaultBaseURL
	}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// LoadCredentials reads the credentials file at path.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return ParseCredentials(data)
}

func (c Credentials) Validate() error {
	if err := ValidateURL(c.URL); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Organizations))
	for _, org := range c.Organizations {
		if err := ValidateOrganization(org); err != nil {
			return err
		}
		if _, dup := seen[org.Name]; dup {
			return &ValidationError{Field: "organizations", Reason: org.Name, Err: ErrDuplicateOrg}
		}
		seen[org.Name] = struct{}{}
	}
	return nil
}

// APIKeys returns the keys indexed by organization name.
func (c Credentials) APIKeys() map[string]string {
	keys := make(map[string]string, len(c.Organizations))
	for _, org := range c.Organizations {
		keys[strings.TrimSpace(org.Name)] = strings.TrimSpace(org.APIKey)
	}
	return keys
}

// ValidateURL checks the API base URL: https only, with no trailing slash.
func ValidateURL(raw string) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return &ValidationError{Field: "url", Err: ErrEmptyURL}
	}
	if !strings.HasPrefix(value, "https://") {
		return &ValidationError{Field: "url", Err: ErrInsecureURL}
	}
	if strings.HasSuffix(value, "/") {
		return &ValidationError{Field: "url", Err: ErrTrailingSlash}
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Err: ErrInvalidURL}
	}
	return nil
}

// ValidateOrganization checks one organization entry.
func ValidateOrganization(org Organization) error {
	name := strings.TrimSpace(org.Name)
	if name == "" {
		return &ValidationError{Field: "organizations.name", Err: ErrEmptyOrgName}
	}
	if !orgName.MatchString(name) {
		return &ValidationError{Field: "organizations.name", Reason: fmt.Sprintf("%q: %s", name, ErrInvalidOrgName), Err: ErrInvalidOrgName}
	}
	if strings.TrimSpace(org.APIKey) == "" {
		return &ValidationError{Field: "organizations.api_key", Reason: fmt.Sprintf("%s for %q", ErrEmptyAPIKey, name), Err: ErrEmptyAPIKey}
	}
	return nil
}
