package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Fake is an in-process sender used by tests and local runs without
// provider credentials. Fail, when set, decides the outcome of each call
// (1-based call number); otherwise every send succeeds.
type Fake struct {
	Fail func(call int, req SendRequest) error

	calls atomic.Int64
	mu    sync.Mutex
	sent  []SendRequest
}

// Send records req and returns a synthetic provider id.
func (f *Fake) Send(ctx context.Context, req SendRequest) (string, error) {
	n := int(f.calls.Add(1))
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Fail != nil {
		if err := f.Fail(n, req); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	return fmt.Sprintf("wamid.fake.%d", n), nil
}

// Calls returns the number of Send invocations.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

// Sent returns the successfully sent requests.
func (f *Fake) Sent() []SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SendRequest(nil), f.sent...)
}
