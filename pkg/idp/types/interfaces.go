package types

import (
	"context"
)

// Client talks to a message gateway. Every call is bound to the gateway URL
// passed in, so one client serves all gateways.
type Client interface {
	GetReturnMessages(ctx context.Context, gatewayURL string, auth Auth, filter Filter) (*ReturnMessagesResponse, error)
	GetForwardStatuses(ctx context.Context, gatewayURL string, auth Auth, filter Filter) (*ForwardStatusesResponse, error)
	SubmitForwardMessages(ctx context.Context, gatewayURL string, auth Auth, messages []ForwardMessage) (*SubmitResponse, error)
	ErrorName(ctx context.Context, gatewayURL string, errorID int) string
}
