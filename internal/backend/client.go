// Package backend is the REST client for the mailstorm persistence API. The
// composer never talks to storage directly; every campaign, send-info and
// content read or write goes through here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mailstorm/composer/internal/session"
)

// Client is a mailstorm API client.
type Client struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
}

// NewClient creates a client bound to an authenticated session.
func NewClient(baseURL string, sess *session.Session, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		session: sess,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// request performs an HTTP request against the mailstorm API.
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	token, err := c.session.Token()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %s", errResp.Error)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Campaign fetches a campaign by id.
func (c *Client) Campaign(ctx context.Context, id int64) (*Campaign, error) {
	var resp Campaign
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/mail-campaigns/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CampaignStatus fetches the preview-time status view of a campaign.
func (c *Client) CampaignStatus(ctx context.Context, id int64) (*CampaignStatus, error) {
	var resp CampaignStatus
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/mail-campaigns/status/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenameCampaign updates the campaign name.
func (c *Client) RenameCampaign(ctx context.Context, id int64, name string) error {
	body := map[string]string{"name": name}
	return c.request(ctx, http.MethodPatch, fmt.Sprintf("/mail-campaigns/%d", id), body, nil)
}

// SetCampaignGroup sets or clears the campaign's address book.
func (c *Client) SetCampaignGroup(ctx context.Context, id int64, groupID *int64) error {
	body := map[string]*int64{"group_id": groupID}
	return c.request(ctx, http.MethodPatch, fmt.Sprintf("/mail-campaigns/group/%d", id), body, nil)
}

// Groups lists the available address books.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var resp []Group
	if err := c.request(ctx, http.MethodGet, "/mail-groups", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RecipientCount returns the size of the campaign's selected audience.
func (c *Client) RecipientCount(ctx context.Context, campaignID int64) (int, error) {
	var count int
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/mail-groups/count/%d", campaignID), nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SendInfo fetches the send-metadata facet for a campaign.
func (c *Client) SendInfo(ctx context.Context, campaignID int64) (*SendInfo, error) {
	var resp SendInfo
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/mail-sendinfo/by-campaign/%d", campaignID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateSendInfo applies a partial send-metadata update and returns the
// persisted resource.
func (c *Client) UpdateSendInfo(ctx context.Context, campaignID int64, patch *SendInfoPatch) (*SendInfo, error) {
	var resp SendInfo
	if err := c.request(ctx, http.MethodPatch, fmt.Sprintf("/mail-sendinfo/by-campaign/%d", campaignID), patch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Content fetches the content facet for a campaign.
func (c *Client) Content(ctx context.Context, campaignID int64) (*Content, error) {
	var resp Content
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/mail-contents/by-campaign/%d", campaignID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateContent applies a partial content update and returns the persisted
// resource.
func (c *Client) UpdateContent(ctx context.Context, campaignID int64, patch *ContentPatch) (*Content, error) {
	var resp Content
	if err := c.request(ctx, http.MethodPatch, fmt.Sprintf("/mail-contents/by-campaign/%d", campaignID), patch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send submits the final dispatch request.
func (c *Client) Send(ctx context.Context, req *SendRequest) error {
	return c.request(ctx, http.MethodPost, "/mail/send", req, nil)
}
