package lw3

import (
	"fmt"
	"sync"
	"time"
)

// MaxTransactionID is the last id handed out before the counter wraps to 0.
const MaxTransactionID = 9998

// ResponseFunc receives the trimmed body of the block answering a request.
type ResponseFunc func(body string)

// ErrorFunc receives the reason a pending request will never be answered.
type ErrorFunc func(err error)

type pendingRequest struct {
	command    string
	onResponse ResponseFunc
	onError    ErrorFunc
	deadline   time.Time
}

// Registry maps transaction ids to pending response callbacks.
type Registry struct {
	mu      sync.Mutex
	next    int
	pending map[string]*pendingRequest
	timeout time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry. A zero timeout keeps requests pending
// until answered or reset.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		pending: make(map[string]*pendingRequest),
		timeout: timeout,
		now:     time.Now,
	}
}

// FormatID renders a transaction id the way it appears on the wire.
func FormatID(n int) string {
	return fmt.Sprintf("%04d", n)
}

// Allocate returns the next cyclic id and advances the counter.
func (r *Registry) Allocate() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := FormatID(r.next)
	if r.next >= MaxTransactionID {
		r.next = 0
	} else {
		r.next++
	}
	return id
}

// Register stores the callbacks for id. An entry still pending under the
// same id is overwritten silently; strict callers check IsPending first.
func (r *Registry) Register(id, command string, onResponse ResponseFunc, onError ErrorFunc) {
	r.register(id, command, onResponse, onError)
}

func (r *Registry) register(id, command string, onResponse ResponseFunc, onError ErrorFunc) *pendingRequest {
	req := &pendingRequest{
		command:    command,
		onResponse: onResponse,
		onError:    onError,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timeout > 0 {
		req.deadline = r.now().Add(r.timeout)
	}
	r.pending[id] = req
	return req
}

// cancel drops id only while it still belongs to req.
func (r *Registry) cancel(id string, req *pendingRequest) {
	r.mu.Lock()
	if r.pending[id] == req {
		delete(r.pending, id)
	}
	r.mu.Unlock()
}

func (r *Registry) IsPending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Remove drops an entry without invoking anything.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Resolve invokes and removes the callback for id. It returns false when
// no request is pending under that id.
func (r *Registry) Resolve(id, body string) bool {
	r.mu.Lock()
	req, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	// outside the lock, callbacks may Send
	if req.onResponse != nil {
		req.onResponse(body)
	}
	return true
}

// Expired describes a request dropped by Expire.
type Expired struct {
	ID      string
	Command string
}

// Expire removes requests whose deadline is before now and hands them
// ErrRequestTimeout.
func (r *Registry) Expire(now time.Time) []Expired {
	var (
		expired []Expired
		fns     []ErrorFunc
	)

	r.mu.Lock()
	for id, req := range r.pending {
		if req.deadline.IsZero() || now.Before(req.deadline) {
			continue
		}
		delete(r.pending, id)
		expired = append(expired, Expired{ID: id, Command: req.command})
		if req.onError != nil {
			fns = append(fns, req.onError)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ErrRequestTimeout)
	}
	return expired
}

// Reset abandons every pending request and restarts the id counter. Error
// callbacks receive err; response callbacks are never invoked.
func (r *Registry) Reset(err error) int {
	return abandon(r.detach(), err)
}

// detach empties the table and restarts the id counter without running
// callbacks. The caller hands the result to abandon.
func (r *Registry) detach() map[string]*pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pending
	r.pending = make(map[string]*pendingRequest)
	r.next = 0
	return pending
}

func abandon(pending map[string]*pendingRequest, err error) int {
	for _, req := range pending {
		if req.onError != nil {
			req.onError(err)
		}
	}
	return len(pending)
}

// Pending returns the number of outstanding requests.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
