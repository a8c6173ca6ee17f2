package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// modelCostUSD is the provider's per-image price by model, used to stamp
// estimated cost onto artifacts for billing reconciliation.
var modelCostUSD = map[string]float64{
	"gemini-2.5-flash-image": 0.039,
	"gemini-2.0-flash-image": 0.020,
}

const defaultCostUSD = 0.039

// HTTPClient is a Gemini-style JSON-over-HTTP provider client.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a provider client. timeout bounds the whole
// generation call; callers can cancel earlier through ctx.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateBody struct {
	Model       string            `json:"model"`
	Resolution  string            `json:"resolution"`
	Reference   string            `json:"reference,omitempty"`
	StyleParams map[string]string `json:"styleParams,omitempty"`
}

type generateResponse struct {
	URL   string `json:"url"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate calls the provider and classifies any failure into a Kind.
func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest) (*Artifact, error) {
	body, err := json.Marshal(generateBody{
		Model:       req.Model,
		Resolution:  req.Resolution,
		Reference:   req.Reference,
		StyleParams: req.StyleParams,
	})
	if err != nil {
		return nil, &Error{Kind: KindOther, Model: req.Model, Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/images:generate", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindOther, Model: req.Model, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Context cancellation propagates untouched so the dispatcher can
		// tell an abandoned request from a provider outage.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindUnavailable, Model: req.Model, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Model: req.Model, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, req.Model, raw)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &Error{Kind: KindOther, Model: req.Model, Message: "malformed provider response"}
	}
	if gr.URL == "" {
		return nil, &Error{Kind: KindOther, Model: req.Model, Message: "provider returned no artifact URL"}
	}

	return &Artifact{
		URL:              gr.URL,
		Model:            req.Model,
		Resolution:       req.Resolution,
		EstimatedCostUSD: CostUSD(req.Model),
	}, nil
}

// classify maps provider HTTP status codes onto the closed error kinds.
func classify(status int, model string, raw []byte) *Error {
	var gr generateResponse
	_ = json.Unmarshal(raw, &gr)
	msg := gr.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Model: model, Message: msg}
	case status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return &Error{Kind: KindUnavailable, Model: model, Message: msg}
	case status == http.StatusBadRequest,
		status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindRejected, Model: model, Message: msg}
	default:
		return &Error{Kind: KindOther, Model: model, Message: msg}
	}
}

// CostUSD returns the provider's estimated per-image cost for a model.
func CostUSD(model string) float64 {
	if cost, ok := modelCostUSD[model]; ok {
		return cost
	}
	return defaultCostUSD
}

// Compile-time assertion.
var _ Client = (*HTTPClient)(nil)
