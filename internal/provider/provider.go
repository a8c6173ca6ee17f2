// Package provider defines the image-generation provider contract.
//
// Failures carry a closed Kind enumeration so callers decide retryability
// by switching on kind, never by matching error-message strings.
package provider

import (
	"context"
	"fmt"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindRateLimited Kind = "rate_limited" // provider throttled the request
	KindUnavailable Kind = "unavailable"  // provider down or out of capacity
	KindRejected    Kind = "rejected"     // content policy or malformed input; terminal
	KindOther       Kind = "other"        // auth failures, unexpected responses; terminal
)

// Error is a classified provider failure.
type Error struct {
	Kind    Kind
	Model   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s (%s): %s", e.Kind, e.Model, e.Message)
}

// Transient reports whether the failure is an availability problem worth
// retrying against another tier. Rejections and auth failures are not.
func (e *Error) Transient() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnavailable
}

// GenerateRequest is the input to a generation call.
type GenerateRequest struct {
	Model       string
	Resolution  string
	Reference   string            // source photo or reference image URL
	StyleParams map[string]string // style knobs passed through to the model
}

// Artifact is a completed generation.
type Artifact struct {
	URL              string
	Model            string
	Resolution       string
	EstimatedCostUSD float64
}

// Client calls the external generation provider. The call is the only
// long-latency operation in the request path and honours ctx cancellation.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*Artifact, error)
}
