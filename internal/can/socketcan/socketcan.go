// Package socketcan wraps github.com/brutella/can to satisfy the
// internal/can Bus interface against a real Linux SocketCAN interface.
package socketcan

import (
	sockcan "github.com/brutella/can"

	"github.com/samsamfire/cia402drivesim/internal/can"
)

func init() {
	can.RegisterInterface("socketcan", New)
}

// Bus adapts a brutella/can bus to can.Bus.
type Bus struct {
	bus      *sockcan.Bus
	listener can.FrameListener
}

// New opens (but does not connect) a SocketCAN bus on the named
// interface, e.g. "can0" or "vcan0".
func New(channel string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, err
	}
	return &Bus{bus: bus}, nil
}

func (b *Bus) Connect() error {
	go b.bus.ConnectAndPublish()
	return nil
}

func (b *Bus) Disconnect() error {
	return b.bus.Disconnect()
}

func (b *Bus) Send(frame can.Frame) error {
	return b.bus.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Data:   frame.Data,
	})
}

func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.listener = listener
	b.bus.Subscribe(b)
	return nil
}

// Handle implements brutella/can's frame handler interface and converts
// into our wire-neutral Frame before forwarding.
func (b *Bus) Handle(frame sockcan.Frame) {
	b.listener.Handle(can.Frame{ID: frame.ID, DLC: frame.Length, Data: frame.Data})
}
