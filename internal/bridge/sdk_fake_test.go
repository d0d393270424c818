package bridge

import (
	"context"
	"encoding/json"
	"sync"
)

type fakeSub struct {
	fn   func(json.RawMessage)
	once bool
}

// fakeSDK is an in-process HostSDK for tests.
type fakeSDK struct {
	mu         sync.Mutex
	available  bool
	ready      bool
	broadcasts bool
	result     json.RawMessage
	err        error
	calls      []string
	payloads   []any
	subs       map[string][]*fakeSub
	cfg        SDKConfig
}

func newFakeSDK(ready bool) *fakeSDK {
	return &fakeSDK{
		available: true,
		ready:     ready,
		result:    json.RawMessage(`{"success":true,"via":"sdk"}`),
		subs:      map[string][]*fakeSub{},
		cfg:       DefaultSDKConfig,
	}
}

func (f *fakeSDK) Available() bool { return f.available }

func (f *fakeSDK) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSDK) setReady(v bool) {
	f.mu.Lock()
	f.ready = v
	f.mu.Unlock()
}

func (f *fakeSDK) WhenReady(ctx context.Context) error {
	if f.Ready() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSDK) Call(_ context.Context, action string, payload any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	f.payloads = append(f.payloads, payload)
	return f.result, f.err
}

func (f *fakeSDK) CallServer(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	return f.Call(ctx, "server:"+action, payload)
}

func (f *fakeSDK) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSDK) Subscribe(name string, fn func(json.RawMessage), once bool) func() {
	s := &fakeSub{fn: fn, once: once}
	f.mu.Lock()
	f.subs[name] = append(f.subs[name], s)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.subs[name]
		for i, cur := range list {
			if cur == s {
				f.subs[name] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeSDK) subCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[name])
}

func (f *fakeSDK) emit(name string, raw json.RawMessage) {
	f.mu.Lock()
	list := append([]*fakeSub(nil), f.subs[name]...)
	f.mu.Unlock()
	for _, s := range list {
		s.fn(raw)
	}
}

func (f *fakeSDK) Configure(cfg SDKConfig) error {
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	return nil
}

func (f *fakeSDK) EnableDebug() error {
	f.mu.Lock()
	f.cfg.Debug = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSDK) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{Ready: f.ready, PendingRequests: 7, EventListeners: []string{}, Config: f.cfg}
}

func (f *fakeSDK) Broadcasts() bool { return f.broadcasts }
