package runtime

import (
	"context"
	"sync"

	"github.com/drblury/logpipe/internal/runtime/classify"
)

type callKey struct{}

type correlationKey struct{}

// callState is filled in by the handler while the interceptor waits for it.
type callState struct {
	mu      sync.Mutex
	action  string
	outcome *classify.Outcome
}

func withCallState(ctx context.Context) (context.Context, *callState) {
	st := &callState{}
	return context.WithValue(ctx, callKey{}, st), st
}

func callStateFrom(ctx context.Context) *callState {
	st, _ := ctx.Value(callKey{}).(*callState)
	return st
}

func (st *callState) snapshot() (string, *classify.Outcome) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.action, st.outcome
}

// SetAction names the action handling the current call. The name becomes
// the serviceName of the record the interceptor produces. It reports false
// when ctx does not come from an intercepted request.
func SetAction(ctx context.Context, name string) bool {
	st := callStateFrom(ctx)
	if st == nil {
		return false
	}
	st.mu.Lock()
	st.action = name
	st.mu.Unlock()
	return true
}

// SetOutcome states the result of the current call explicitly, bypassing
// the response body heuristics.
func SetOutcome(ctx context.Context, outcome classify.Outcome) bool {
	st := callStateFrom(ctx)
	if st == nil {
		return false
	}
	st.mu.Lock()
	st.outcome = &outcome
	st.mu.Unlock()
	return true
}

// WithCorrelationID attaches id to ctx; the publish adapter copies it into
// message metadata.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
