package newsclient

import (
	"errors"
	"fmt"
)

// Kind classifies a client failure.
type Kind int

const (
	// KindTransport: no connectivity, the request could not be sent, or the
	// timeout elapsed.
	KindTransport Kind = iota + 1
	// KindService: the service answered with a non-success status.
	KindService
	// KindDecode: the response did not have the expected shape.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindService:
		return "service"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every Client operation that reaches the network.
type Error struct {
	Kind       Kind
	Op         string // e.g. "GET /api/news"
	StatusCode int    // set for KindService
	Body       string // first KiB of the error body, KindService only
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindService:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so callers can write
// errors.Is(err, newsclient.ErrTransport).
func (e *Error) Is(target error) bool {
	t, ok := target.(*kindSentinel)
	return ok && t.kind == e.Kind
}

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return s.kind.String() + " error" }

// --- Sentinel errors ---

var (
	// ErrTransport matches every KindTransport error.
	ErrTransport error = &kindSentinel{KindTransport}
	// ErrService matches every KindService error.
	ErrService error = &kindSentinel{KindService}
	// ErrDecode matches every KindDecode error.
	ErrDecode error = &kindSentinel{KindDecode}

	// ErrNoSymbols is returned by FetchInsights for an empty basket; no
	// request is sent.
	ErrNoSymbols = errors.New("newsclient: at least one symbol is required")
)

// KindOf returns the kind of err, or 0 when err did not come from the client.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
