package audit

import (
	"context"
	"time"

	"chapel/pkg/platform/middleware/metadata"
	"chapel/pkg/requestcontext"
)

// Action names the security-relevant thing that happened.
type Action string

const (
	ActionGateRejected   Action = "gate_rejected"
	ActionGateFailed     Action = "gate_failed"
	ActionPromoteGranted Action = "promote_granted"
	ActionPromoteFailed  Action = "promote_failed"
)

// Event is a security audit record. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Code      string    `json:"code,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Policy    string    `json:"policy,omitempty"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Browser   string    `json:"browser,omitempty"`
	OS        string    `json:"os,omitempty"`
	Bot       bool      `json:"bot,omitempty"`
}

// WithRequest fills the request-scoped fields from ctx, which the request-id,
// request-time and client-metadata middleware populate.
func (e Event) WithRequest(ctx context.Context, method, path string) Event {
	device := metadata.DescribeUserAgent(requestcontext.UserAgent(ctx))
	e.Timestamp = requestcontext.Now(ctx)
	e.Method = method
	e.Path = path
	e.RequestID = requestcontext.RequestID(ctx)
	e.ClientIP = requestcontext.ClientIP(ctx)
	e.Browser = device.Browser
	e.OS = device.OS
	e.Bot = device.Bot
	return e
}
