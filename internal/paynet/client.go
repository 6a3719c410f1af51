// Package paynet is the HTTP adapter for the upstream payment network. The
// network settles asynchronously; its callbacks land on the public callback
// endpoint, not here.
package paynet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"blaffapay/internal/services"
)

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type dispatchPayload struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	PartnerID     string `json:"partner_id"`
	PlatformID    string `json:"platform_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
}

type dispatchResponse struct {
	ExternalID string `json:"external_id"`
	Accepted   bool   `json:"accepted"`
}

func (c *Client) Dispatch(ctx context.Context, req services.DispatchRequest) (services.DispatchResult, error) {
	body, err := json.Marshal(dispatchPayload{
		TransactionID: req.TransactionID,
		Reference:     req.Reference,
		PartnerID:     req.PartnerID,
		PlatformID:    req.PlatformExternalID,
		Type:          req.Type,
		Amount:        req.AmountMinor,
	})
	if err != nil {
		return services.DispatchResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/dispatch", bytes.NewReader(body))
	if err != nil {
		return services.DispatchResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return services.DispatchResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return services.DispatchResult{}, fmt.Errorf("payment network returned status %d", resp.StatusCode)
	}
	var decoded dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return services.DispatchResult{}, err
	}
	return services.DispatchResult{
		ExternalID: decoded.ExternalID,
		Accepted:   decoded.Accepted,
	}, nil
}
