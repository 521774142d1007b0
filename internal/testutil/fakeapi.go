package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/platform/auctionapi"
)

// Reply is one scripted answer for an endpoint.
type Reply struct {
	Status int
	Body   any
	// Err is returned instead of a response, e.g. to simulate a network
	// failure.
	Err error
	// Before runs before the reply is produced. Tests use it to cancel a
	// context while a request is "in flight".
	Before func()
}

// Call records one request made through the FakeAPI.
type Call struct {
	Endpoint auctionapi.Endpoint
	Creds    domain.Credentials
}

// FakeAPI is a scripted auction API. Each endpoint name has a queue of
// replies; once a queue is drained the last reply repeats. Endpoints with no
// script fall back to the stub's happy path.
type FakeAPI struct {
	mu       sync.Mutex
	fallback map[string]auctionapi.StubResponse
	scripts  map[string][]Reply
	calls    []Call
}

// NewFakeAPI returns a FakeAPI answering with the stub's happy path.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		fallback: auctionapi.DefaultStubResponses(),
		scripts:  make(map[string][]Reply),
	}
}

// On queues replies for an endpoint name.
func (f *FakeAPI) On(name string, replies ...Reply) *FakeAPI {
	f.mu.Lock()
	f.scripts[name] = append(f.scripts[name], replies...)
	f.mu.Unlock()
	return f
}

// Set replaces any queued replies for an endpoint name.
func (f *FakeAPI) Set(name string, replies ...Reply) *FakeAPI {
	f.mu.Lock()
	f.scripts[name] = append([]Reply(nil), replies...)
	f.mu.Unlock()
	return f
}

// Request implements the requester used by the identity client.
func (f *FakeAPI) Request(ctx context.Context, ep auctionapi.Endpoint, creds domain.Credentials) (*auctionapi.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Endpoint: ep, Creds: creds})
	reply, scripted := f.next(ep.Name)
	f.mu.Unlock()

	if reply.Before != nil {
		reply.Before()
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	if !scripted {
		canned, ok := f.fallback[ep.Name]
		if !ok {
			return &auctionapi.Response{StatusCode: http.StatusNotFound}, nil
		}
		reply.Status, reply.Body = canned.Status, canned.Body
	}

	var body []byte
	if reply.Body != nil {
		var err error
		if body, err = json.Marshal(reply.Body); err != nil {
			return nil, err
		}
	}
	return &auctionapi.Response{StatusCode: reply.Status, Body: body}, nil
}

func (f *FakeAPI) next(name string) (Reply, bool) {
	queue := f.scripts[name]
	switch len(queue) {
	case 0:
		return Reply{}, false
	case 1:
		return queue[0], true
	}
	f.scripts[name] = queue[1:]
	return queue[0], true
}

// Calls returns every request made so far.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Names returns the endpoint names called, in order.
func (f *FakeAPI) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Endpoint.Name
	}
	return out
}

// Count returns how many times an endpoint was called.
func (f *FakeAPI) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Endpoint.Name == name {
			n++
		}
	}
	return n
}
