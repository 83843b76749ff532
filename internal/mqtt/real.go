package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/control"
	"github.com/sweeney/plant-wall/internal/status"
)

const (
	defaultClientID       = "plantwall"
	defaultBufferSize     = 100
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	connectRetries        = 3
	breakerTrips          = 3
)

var (
	errNotConnected   = errors.New("not connected")
	errPublishTimeout = errors.New("publish timeout")
	errConnectTimeout = errors.New("connection timeout")
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	BufferSize     int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Logger         *zap.Logger
	Now            func() time.Time
}

func (o *Options) defaults() {
	if o.ClientID == "" {
		o.ClientID = defaultClientID
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client  paho.Client
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // at least one successful connect
}

// NewRealPublisher connects to the broker, retrying the first connect with
// exponential backoff. Paho reconnects on its own after that.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	opts.defaults()
	p := newPublisher(nil, opts)

	will, err := FormatConnectionPayload(EventOffline, opts.Now())
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(TopicEvents, string(will), 1, false).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("mqtt connection lost", zap.Error(err))
		})
	p.client = paho.NewClient(co)

	connect := func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(opts.ConnectTimeout) {
			return errConnectTimeout
		}
		return token.Error()
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	notify := func(err error, next time.Duration) {
		p.log.Warn("mqtt connect failed, retrying", zap.Error(err), zap.Duration("in", next))
	}
	if err := backoff.RetryNotify(connect, backoff.WithMaxRetries(b, connectRetries), notify); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	p.log.Info("mqtt connected", zap.String("broker", opts.Broker))
	return p, nil
}

// newPublisher builds a publisher around an existing client without
// connecting it.
func newPublisher(client paho.Client, opts Options) *RealPublisher {
	opts.defaults()
	p := &RealPublisher{
		client:  client,
		log:     opts.Logger.Named("mqtt"),
		now:     opts.Now,
		timeout: opts.PublishTimeout,
		buf:     newRingBuffer(opts.BufferSize),
	}
	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "mqtt",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Info("breaker state", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return p
}

// PublishStatus sends the snapshot as retained QoS 0.
func (p *RealPublisher) PublishStatus(s status.Snapshot) error {
	return p.send(TopicStatus, 0, true, status.FormatCompact(s))
}

// PublishEvent sends the event at QoS 1, buffering it on failure.
func (p *RealPublisher) PublishEvent(e control.Event) error {
	payload, err := FormatEventPayload(e)
	if err != nil {
		return fmt.Errorf("format event: %w", err)
	}
	if err := p.send(TopicEvents, 1, false, payload); err != nil {
		p.hold(bufferedMsg{topic: TopicEvents, payload: payload, qos: 1})
		return fmt.Errorf("event buffered: %w", err)
	}
	return nil
}

// IsConnected reports whether the connection to the broker is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(1000)
	}
	return nil
}

// Buffered returns the number of events waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		if !p.IsConnected() {
			return nil, errNotConnected
		}
		return nil, p.publish(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	})
	return err
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(p.timeout) {
		return errPublishTimeout
	}
	return token.Error()
}

func (p *RealPublisher) hold(m bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.push(m) {
		p.log.Warn("event buffer full, dropping oldest", zap.Int("capacity", p.buf.capacity))
	}
}

// handleConnect runs on every (re)connect. After the first, it announces
// RECONNECTED and replays held events in order.
func (p *RealPublisher) handleConnect(paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if reconnect {
		payload, err := FormatConnectionPayload(EventReconnected, p.now())
		if err == nil {
			err = p.publish(bufferedMsg{topic: TopicEvents, payload: payload, qos: 1})
		}
		if err != nil {
			p.log.Warn("publish reconnected event", zap.Error(err))
		}
	}

	for i, m := range pending {
		if err := p.publish(m); err != nil {
			p.log.Warn("replay failed, re-buffering", zap.Int("remaining", len(pending)-i), zap.Error(err))
			for _, rest := range pending[i:] {
				p.hold(rest)
			}
			return
		}
	}
	if len(pending) > 0 {
		p.log.Info("replayed buffered events", zap.Int("count", len(pending)))
	}
}
