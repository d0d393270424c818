package bridge

import "fmt"

// Kind enumerates the transports a Client can use.
type Kind int

const (
	KindUnresolved Kind = iota
	KindHTTP
	KindInjectedSDK
	KindMock
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindInjectedSDK:
		return "sdk"
	case KindMock:
		return "mock"
	default:
		return "unresolved"
	}
}

// ParseKind accepts the names produced by Kind.String. "auto" and "" map to
// KindUnresolved, meaning the client should detect the transport.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "auto":
		return KindUnresolved, nil
	case "http":
		return KindHTTP, nil
	case "sdk":
		return KindInjectedSDK, nil
	case "mock":
		return KindMock, nil
	}
	return KindUnresolved, fmt.Errorf("unknown bridge mode %q", s)
}

// Mode is the active transport. BaseURL is set only for KindHTTP.
type Mode struct {
	Kind    Kind
	BaseURL string
}

func HTTPMode(baseURL string) Mode { return Mode{Kind: KindHTTP, BaseURL: baseURL} }
func InjectedSDKMode() Mode        { return Mode{Kind: KindInjectedSDK} }
func MockMode() Mode               { return Mode{Kind: KindMock} }

func (m Mode) Resolved() bool { return m.Kind != KindUnresolved }

func (m Mode) String() string {
	if m.Kind == KindHTTP && m.BaseURL != "" {
		return "http(" + m.BaseURL + ")"
	}
	return m.Kind.String()
}
