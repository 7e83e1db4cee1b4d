// Package virtual implements an in-process CAN bus: every Bus opened on
// the same channel name shares a broadcast domain, so a test "master"
// and a simulated node can exchange frames without real CAN hardware.
// Implemented as a simple in-memory broadcaster rather than a networked
// broker, since every participant lives in the same process.
package virtual

import (
	"sync"

	"github.com/samsamfire/cia402drivesim/internal/can"
)

func init() {
	can.RegisterInterface("virtual", New)
	can.RegisterInterface("virtualcan", New)
}

var (
	registryMu sync.Mutex
	channels   = map[string]*domain{}
)

type domain struct {
	mu        sync.Mutex
	listeners []*Bus
}

func domainFor(channel string) *domain {
	registryMu.Lock()
	defer registryMu.Unlock()
	d, ok := channels[channel]
	if !ok {
		d = &domain{}
		channels[channel] = d
	}
	return d
}

// Bus is a virtual, in-memory CAN bus endpoint.
type Bus struct {
	domain    *domain
	listener  can.FrameListener
	connected bool
}

// New returns a virtual bus bound to channel. Any two buses opened with
// the same channel name observe each other's frames.
func New(channel string) (can.Bus, error) {
	return &Bus{domain: domainFor(channel)}, nil
}

func (b *Bus) Connect() error {
	b.domain.mu.Lock()
	defer b.domain.mu.Unlock()
	b.connected = true
	b.domain.listeners = append(b.domain.listeners, b)
	return nil
}

func (b *Bus) Disconnect() error {
	b.domain.mu.Lock()
	defer b.domain.mu.Unlock()
	b.connected = false
	for i, l := range b.domain.listeners {
		if l == b {
			b.domain.listeners = append(b.domain.listeners[:i], b.domain.listeners[i+1:]...)
			break
		}
	}
	return nil
}

// Send broadcasts frame to every other bus sharing this channel. A bus
// that is not connected sends nothing.
func (b *Bus) Send(frame can.Frame) error {
	b.domain.mu.Lock()
	if !b.connected {
		b.domain.mu.Unlock()
		return nil
	}
	peers := make([]*Bus, len(b.domain.listeners))
	copy(peers, b.domain.listeners)
	b.domain.mu.Unlock()

	for _, peer := range peers {
		if peer == b || peer.listener == nil {
			continue
		}
		peer.listener.Handle(frame)
	}
	return nil
}

func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.listener = listener
	return nil
}
