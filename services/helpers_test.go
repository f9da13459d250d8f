package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
)

type fetchCall struct {
	Ctx         context.Context
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

// fakeFetcher records every outbound request and answers through handler
type fakeFetcher struct {
	mutex   sync.Mutex
	calls   []fetchCall
	handler func(call fetchCall) (*shared.FetchResponse, error)
}

func newFakeFetcher(handler func(call fetchCall) (*shared.FetchResponse, error)) *fakeFetcher {
	return &fakeFetcher{handler: handler}
}

func respondWith(status int, body string) func(call fetchCall) (*shared.FetchResponse, error) {
	return func(fetchCall) (*shared.FetchResponse, error) {
		return &shared.FetchResponse{StatusCode: status, Body: []byte(body)}, nil
	}
}

func (f *fakeFetcher) record(call fetchCall) (*shared.FetchResponse, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, call)
	handler := f.handler
	f.mutex.Unlock()

	if handler == nil {
		return &shared.FetchResponse{StatusCode: 200}, nil
	}
	return handler(call)
}

func (f *fakeFetcher) Get(ctx context.Context, url string, headers map[string]string) (*shared.FetchResponse, error) {
	return f.record(fetchCall{Ctx: ctx, Method: "GET", URL: url})
}

func (f *fakeFetcher) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*shared.FetchResponse, error) {
	return f.record(fetchCall{Ctx: ctx, Method: "POST", URL: url, ContentType: contentType, Body: body})
}

func (f *fakeFetcher) CallCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) LastCall() fetchCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.calls) == 0 {
		return fetchCall{}
	}
	return f.calls[len(f.calls)-1]
}

// mockAdapter returns a canned result and counts invocations
type mockAdapter struct {
	registrar models.RegistrarType
	calls     atomic.Int32
	delay     time.Duration
	respond   func(params models.AllotmentCheckParams) models.AllotmentResult
}

func (m *mockAdapter) Name() models.RegistrarType {
	return m.registrar
}

func (m *mockAdapter) CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) models.AllotmentResult {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.respond(params)
}

// testClock is a manually advanced time source
type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mutex  sync.Mutex
	events map[string][]interface{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]interface{})}
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events[routingKey] = append(p.events[routingKey], event)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Count(routingKey string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.events[routingKey])
}

func intPtr(v int) *int {
	return &v
}
