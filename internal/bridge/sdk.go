package bridge

import (
	"context"
	"encoding/json"
)

// HostSDK is the capability a host may provide in place of the HTTP peer.
// Implementations that are not present report Available() == false and fail
// every call with ErrSDKUnavailable.
type HostSDK interface {
	Available() bool
	Ready() bool
	WhenReady(ctx context.Context) error
	Call(ctx context.Context, action string, payload any) (json.RawMessage, error)
	CallServer(ctx context.Context, action string, payload any) (json.RawMessage, error)
	// Subscribe registers fn for name and returns the func that removes it.
	Subscribe(name string, fn func(json.RawMessage), once bool) (cancel func())
	Configure(cfg SDKConfig) error
	EnableDebug() error
	Status() Status
}

// Unavailable is the HostSDK used when the host provides none.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }
func (Unavailable) Ready() bool     { return false }

func (Unavailable) WhenReady(context.Context) error { return ErrSDKUnavailable }

func (Unavailable) Call(context.Context, string, any) (json.RawMessage, error) {
	return nil, ErrSDKUnavailable
}

func (Unavailable) CallServer(context.Context, string, any) (json.RawMessage, error) {
	return nil, ErrSDKUnavailable
}

func (Unavailable) Subscribe(string, func(json.RawMessage), bool) func() { return func() {} }

func (Unavailable) Configure(SDKConfig) error { return ErrSDKUnavailable }
func (Unavailable) EnableDebug() error        { return ErrSDKUnavailable }

func (Unavailable) Status() Status {
	return Status{EventListeners: []string{}, Config: DefaultSDKConfig}
}
