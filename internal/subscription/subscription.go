// Package subscription verifies classification entitlement against the
// billing service.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Checker queries the billing service's subscription endpoint.
type Checker struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewChecker creates a checker for the given endpoint URL.
func NewChecker(endpoint string, logger *slog.Logger) (*Checker, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("subscription endpoint cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger,
	}, nil
}

// Valid reports whether the subscription is active. Transport and
// decoding failures are errors, not "invalid": the caller distinguishes
// "could not check" from "checked and denied".
func (c *Checker) Valid(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build subscription request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("subscription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("subscription endpoint returned status %d", resp.StatusCode)
	}

	var status struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("failed to decode subscription response: %w", err)
	}

	c.logger.Debug("subscription checked", "valid", status.Valid)
	return status.Valid, nil
}

// StaticChecker always reports the configured validity. It backs
// self-hosted deployments with no billing service configured.
type StaticChecker struct {
	IsValid bool
}

// Valid implements the engine's subscription check.
func (s StaticChecker) Valid(_ context.Context) (bool, error) {
	return s.IsValid, nil
}
