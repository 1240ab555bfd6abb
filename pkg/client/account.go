package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AccountInfo is the /v2/account response.
type AccountInfo struct {
	Plan   string        `json:"plan"`
	Images AccountImages `json:"images"`
}

// AccountImages is the image quota of an account.
type AccountImages struct {
	// Available is the number of images left in the current quota.
	Available int `json:"available"`

	// Subscription is the total number of images in the subscription.
	Subscription int `json:"subscription"`
}

// Used returns how many images of the subscription were consumed.
func (a AccountInfo) Used() int {
	return max(0, a.Images.Subscription-a.Images.Available)
}

// GetAccount returns the plan and remaining image quota.
func (c *Client) GetAccount(ctx context.Context) (*AccountInfo, error) {
	raw, err := c.send(ctx, PathAccount, requestSpec{
		method: http.MethodGet,
		url:    c.config.ImageAPIBaseURL + PathAccount,
	})
	if err != nil {
		return nil, err
	}

	var info AccountInfo
	if err := json.Unmarshal(raw.body, &info); err != nil {
		return nil, fmt.Errorf("decode account response: %w", err)
	}
	if info.Images.Subscription < 0 {
		return nil, fmt.Errorf("decode account response: negative subscription %d", info.Images.Subscription)
	}
	return &info, nil
}
