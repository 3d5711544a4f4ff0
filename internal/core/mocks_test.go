package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stagecast/stagecast/internal/domain"
)

// fakeConn records every frame handed to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send queue full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

type recordedEvent struct {
	Type domain.StageAction `json:"type"`
	Data json.RawMessage    `json:"data"`
}

func (c *fakeConn) events() []recordedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedEvent, 0, len(c.frames))
	for _, f := range c.frames {
		var ev recordedEvent
		if err := json.Unmarshal(f, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) countOf(action domain.StageAction) int {
	n := 0
	for _, ev := range c.events() {
		if ev.Type == action {
			n++
		}
	}
	return n
}

type fakeRouter struct{ id string }

func (r *fakeRouter) ID() string                    { return r.id }
func (r *fakeRouter) Capabilities() json.RawMessage { return json.RawMessage(`{"codecs":[]}`) }

type fakeTransport struct {
	id string

	mu          sync.Mutex
	connectedTo json.RawMessage
	closed      bool
	closeFns    []func()
}

func (t *fakeTransport) ID() string { return t.id }
func (t *fakeTransport) ConnectParams() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q}`, t.id))
}

func (t *fakeTransport) Connect(params json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectedTo = params
	return nil
}

func (t *fakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeFns = append(t.closeFns, fn)
}

func (t *fakeTransport) Close() error {
	t.fire()
	return nil
}

// fire simulates the engine's transport-close notification.
func (t *fakeTransport) fire() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	fns := t.closeFns
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeProducer struct {
	id     string
	kind   string
	closed atomic.Bool
}

func (p *fakeProducer) ID() string   { return p.id }
func (p *fakeProducer) Kind() string { return p.kind }
func (p *fakeProducer) Close() error { p.closed.Store(true); return nil }

type fakeConsumer struct {
	id      string
	resumes atomic.Int32
}

func (c *fakeConsumer) ID() string { return c.id }
func (c *fakeConsumer) Params() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"paused":true}`, c.id))
}
func (c *fakeConsumer) Resume() error { c.resumes.Add(1); return nil }
func (c *fakeConsumer) Close() error  { return nil }

// fakeEngine hands out sequentially numbered handles and counts calls.
type fakeEngine struct {
	routerCalls atomic.Int32

	mu           sync.Mutex
	routerErr    error
	transportErr error
	seq          int
	transports   []*fakeTransport
	producers    []*fakeProducer
}

func (e *fakeEngine) CreateRouter(_ context.Context, stageID domain.StageID) (RouterHandle, error) {
	e.mu.Lock()
	err := e.routerErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	n := e.routerCalls.Add(1)
	return &fakeRouter{id: fmt.Sprintf("router-%s-%d", stageID, n)}, nil
}

func (e *fakeEngine) CreateTransport(_ context.Context, _ RouterHandle, _ Direction, _ json.RawMessage) (TransportHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transportErr != nil {
		return nil, e.transportErr
	}
	e.seq++
	t := &fakeTransport{id: fmt.Sprintf("transport-%d", e.seq)}
	e.transports = append(e.transports, t)
	return t, nil
}

func (e *fakeEngine) Produce(_ context.Context, _ TransportHandle, params MediaParams) (ProducerHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	p := &fakeProducer{id: fmt.Sprintf("producer-%d", e.seq), kind: params.Kind}
	e.producers = append(e.producers, p)
	return p, nil
}

func (e *fakeEngine) Consume(_ context.Context, _ TransportHandle, _ string, _ json.RawMessage) (ConsumerHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return &fakeConsumer{id: fmt.Sprintf("consumer-%d", e.seq)}, nil
}

func testIdentity(n int) domain.Identity {
	return domain.Identity{ID: fmt.Sprintf("user-%d", n), DisplayName: fmt.Sprintf("User %d", n)}
}
