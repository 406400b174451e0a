// Package idx generates request correlation ids.
//
// Every call the sierra client sends gets one RequestID. It is attached to the
// outbound X-Request-ID header and to every log line produced for that call,
// so a single request can be followed through client logs and proxy logs.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID is a ULID rendered in its canonical 26 character form.
type RequestID string

// ErrInvalid reports a malformed request id.
var ErrInvalid = errors.New("idx: invalid request id")

var (
	once    sync.Once
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
)

func initEntropy() {
	entropy = ulid.Monotonic(rand.Reader, 0)
}

// New returns a fresh request id stamped with the current UTC time.
func New() RequestID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a request id stamped with t. Ids minted within the same
// millisecond still sort in creation order.
func NewAt(t time.Time) RequestID {
	once.Do(initEntropy)

	mu.Lock()
	defer mu.Unlock()

	return RequestID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates s as a request id, e.g. one echoed back by a proxy.
func Parse(s string) (RequestID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalid
	}

	if _, err := ulid.ParseStrict(s); err != nil {
		return "", ErrInvalid
	}

	return RequestID(s), nil
}

func (id RequestID) String() string { return string(id) }

// Time returns the instant the id was minted, or the zero time when id does
// not parse.
func (id RequestID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}

	return ulid.Time(u.Time())
}
