// Package nmt implements the slave-side CiA-301 network management
// module: decoding addressed NMT commands into state transitions and
// emitting the boot/state-change broadcast frame.
//
// No heartbeat producer/consumer and no reset-command plumbing back to
// a supervisor; state transitions and the boot frame follow the same
// COB-ID and byte layout as the NMT state broadcast convention.
package nmt

import (
	"log/slog"

	"github.com/samsamfire/cia402drivesim/internal/can"
)

// State is the node's CiA-301 NMT operating state.
type State uint8

const (
	StateInitializing   State = 0x00
	StateStopped        State = 0x04
	StateOperational    State = 0x05
	StatePreOperational State = 0x7F
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateStopped:
		return "STOPPED"
	case StateOperational:
		return "OPERATIONAL"
	case StatePreOperational:
		return "PRE-OPERATIONAL"
	default:
		return "UNKNOWN"
	}
}

// requestedState is the wire value received in an NMT command's first
// byte; it is kept distinct from State because its values differ from
// the State bytes and 0x81/0x82 have no State equivalent.
type requestedState uint8

const (
	reqOperational    requestedState = 0x01
	reqStopped        requestedState = 0x02
	reqPreOperational requestedState = 0x80
	reqResetNode      requestedState = 0x81
	reqResetComm      requestedState = 0x82
)

var transitionTable = map[requestedState]State{
	reqOperational:    StateOperational,
	reqStopped:        StateStopped,
	reqPreOperational: StatePreOperational,
	reqResetNode:      StateInitializing,
	reqResetComm:      StateInitializing,
}

// NMT holds the node's current operating state and the means to
// broadcast it.
type NMT struct {
	bus    can.Bus
	logger *slog.Logger
	nodeID uint8
	state  State
}

// New returns an NMT module for nodeID, starting in StateInitializing.
func New(bus can.Bus, logger *slog.Logger, nodeID uint8) *NMT {
	if logger == nil {
		logger = slog.Default()
	}
	return &NMT{
		bus:    bus,
		logger: logger.With("service", "nmt", "node", nodeID),
		nodeID: nodeID,
		state:  StateInitializing,
	}
}

// State returns the current NMT operating state.
func (n *NMT) State() State { return n.state }

// Handle processes a received NMT command frame. A malformed payload
// (DLC != 2) is a ProtocolError: logged, no state effect. A command not
// addressed to this node is silently ignored.
func (n *NMT) Handle(frame can.Frame) {
	if frame.DLC != 2 {
		n.logger.Error("malformed nmt command", "dlc", frame.DLC)
		return
	}
	requested := requestedState(frame.Data[0])
	addressed := frame.Data[1]
	if addressed != n.nodeID {
		return
	}

	next, ok := transitionTable[requested]
	if !ok {
		n.logger.Warn("unknown nmt command", "requested", requested)
		return
	}
	n.setState(next)
}

// Boot puts the node in Initializing at startup and emits the boot
// frame (state byte 0x00), mirroring send_new_nmt_state's on-entry behavior.
func (n *NMT) Boot() {
	n.setState(StateInitializing)
}

// setState always re-emits the state frame, even if the state is
// unchanged, so entering Initializing always produces a boot frame.
func (n *NMT) setState(next State) {
	prev := n.state
	n.state = next
	n.logger.Info("nmt state changed", "previous", prev, "new", next)
	n.broadcast()
}

func (n *NMT) broadcast() {
	cobID := 0x700 + uint32(n.nodeID)
	frame := can.NewFrame(cobID, []byte{byte(n.state)})
	if err := n.bus.Send(frame); err != nil {
		n.logger.Error("failed to send nmt state frame", "err", err)
	}
}
