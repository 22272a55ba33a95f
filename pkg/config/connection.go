package config

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ConnectionTimeout bounds CheckConnection.
const ConnectionTimeout = 3 * time.Second

// CheckConnection issues a GET against url and accepts any 2xx or 3xx
// answer.
func CheckConnection(ctx context.Context, client *http.Client, url string) error {
	ctx, cancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionCheck, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionCheck, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d %s", ErrConnectionCheck, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
