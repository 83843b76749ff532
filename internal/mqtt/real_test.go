package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/plant-wall/internal/control"
	"github.com/sweeney/plant-wall/internal/status"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	open         bool
	err          error
	attempts     int
	published    []message
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.err != nil {
		return &fakeToken{err: c.err}
	}
	c.published = append(c.published, message{topic, qos, retained, payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) set(open bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
	c.err = err
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.published...)
}

func (c *fakeClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func newTestPublisher(t *testing.T, client *fakeClient, buffer int) *RealPublisher {
	t.Helper()
	return newPublisher(client, Options{
		BufferSize: buffer,
		Logger:     zaptest.NewLogger(t),
		Now:        func() time.Time { return t0 },
	})
}

func eventName(t *testing.T, p message) string {
	t.Helper()
	var ev EventPayload
	if err := json.Unmarshal(p.payload, &ev); err != nil {
		t.Fatalf("invalid event payload %s: %v", p.payload, err)
	}
	return ev.Event
}

func TestRealPublisherStatusRetained(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(t, client, 10)

	snap := status.Snapshot{Initialized: true, Tick: 7, Mode: status.ModeRunning}
	if err := p.PublishStatus(snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := client.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(sent))
	}
	if sent[0].topic != TopicStatus || !sent[0].retained || sent[0].qos != 0 {
		t.Errorf("unexpected publish options: %+v", sent[0])
	}
	if string(sent[0].payload) != string(status.FormatCompact(snap)) {
		t.Errorf("payload should be compact status JSON, got %s", sent[0].payload)
	}
}

func TestRealPublisherEventQoS1(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(t, client, 10)

	if err := p.PublishEvent(control.Event{Type: control.EventNutrientDosed, Time: t0, Amount: 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := client.sent()
	if len(sent) != 1 || sent[0].topic != TopicEvents || sent[0].qos != 1 || sent[0].retained {
		t.Fatalf("unexpected publishes: %+v", sent)
	}
	if p.Buffered() != 0 {
		t.Error("a delivered event should not be buffered")
	}
}

func TestRealPublisherStatusDroppedWhenDisconnected(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(t, client, 10)

	if err := p.PublishStatus(status.Snapshot{}); err == nil {
		t.Error("expected error while disconnected")
	}
	if p.Buffered() != 0 {
		t.Error("status should never be buffered")
	}
}

func TestRealPublisherBuffersAndReplaysEvents(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(t, client, 10)
	p.handleConnect(client)

	client.set(false, nil)
	p.PublishEvent(control.Event{Type: control.EventWateringStarted, Time: t0})
	p.PublishEvent(control.Event{Type: control.EventWateringStopped, Time: t0})
	if p.Buffered() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", p.Buffered())
	}

	client.set(true, nil)
	p.handleConnect(client)

	sent := client.sent()
	if len(sent) != 3 {
		t.Fatalf("expected RECONNECTED plus 2 replays, got %d", len(sent))
	}
	want := []string{EventReconnected, "WATERING_STARTED", "WATERING_STOPPED"}
	for i, w := range want {
		if got := eventName(t, sent[i]); got != w {
			t.Errorf("publish %d: got %s, want %s", i, got, w)
		}
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer should be empty after replay, got %d", p.Buffered())
	}
}

func TestRealPublisherFirstConnectIsNotReconnect(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(t, client, 10)
	p.handleConnect(client)
	if len(client.sent()) != 0 {
		t.Errorf("first connect should publish nothing, got %d", len(client.sent()))
	}
}

func TestRealPublisherReplayFailureRebuffers(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(t, client, 10)
	p.PublishEvent(control.Event{Type: control.EventStartup, Time: t0})

	client.set(true, errors.New("broker gone"))
	p.handleConnect(client)

	if p.Buffered() != 1 {
		t.Errorf("failed replay should keep the event, got %d buffered", p.Buffered())
	}
}

func TestRealPublisherBreakerOpens(t *testing.T) {
	client := &fakeClient{open: true, err: errors.New("publish refused")}
	p := newTestPublisher(t, client, 10)

	for i := 0; i < 10; i++ {
		if err := p.PublishStatus(status.Snapshot{}); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := client.Attempts(); got != breakerTrips {
		t.Errorf("open breaker should stop publish attempts: got %d, want %d", got, breakerTrips)
	}
}

func TestRealPublisherClose(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(t, client, 10)
	p.Close()
	if !client.disconnected {
		t.Error("Close should disconnect the client")
	}
}
