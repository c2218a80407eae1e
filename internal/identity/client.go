// Package identity provides a client for the external identity system
// that owns staff roles and approval permissions.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eric2umeh/frontbill/internal/model"
)

// Client encapsulates the HTTP interaction with the identity system.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// StaffProfile describes the identity system's answer for one staff member.
type StaffProfile struct {
	StaffID int64           `json:"staff_id"`
	Role    model.StaffRole `json:"role"`
	Active  bool            `json:"active"`
}

// NewClient creates an HTTP client for the identity system at the given address.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetStaffProfile fetches the role information for the given staff member.
func (c *Client) GetStaffProfile(ctx context.Context, staffID int64) (*StaffProfile, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("identity client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/staff/%d", base, staffID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("staff %d unknown to identity system", staffID)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var profile StaffProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &profile, nil
}

// CanApprove implements the service Authorizer contract: only active
// managers and admins may approve reconciliations.
func (c *Client) CanApprove(ctx context.Context, staffID int64) (bool, error) {
	profile, err := c.GetStaffProfile(ctx, staffID)
	if err != nil {
		return false, err
	}
	return profile.Active && profile.Role.CanApprove(), nil
}
