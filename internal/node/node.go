// Package node wires one axis's object dictionary, NMT, SDO, PDO and
// CiA-402 drive controller into a single Node context and implements
// the frame codec that classifies every received CAN frame by COB-ID.
//
// A single mutex-guarded Handle entry point dispatches by COB-ID
// against a fixed 8-slot table, since a CiA-402 slave only ever needs
// NMT/SYNC/RPDO/SDO classification.
package node

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samsamfire/cia402drivesim/internal/can"
	"github.com/samsamfire/cia402drivesim/internal/config"
	"github.com/samsamfire/cia402drivesim/internal/drive"
	"github.com/samsamfire/cia402drivesim/internal/nmt"
	"github.com/samsamfire/cia402drivesim/internal/od"
	"github.com/samsamfire/cia402drivesim/internal/pdo"
	"github.com/samsamfire/cia402drivesim/internal/sdo"
)

// controllerPeriod is the controller task's fixed cadence.
const controllerPeriod = 1 * time.Millisecond

// Node holds one axis's complete per-node state and is the unit of
// mutual exclusion between its listener and controller tasks.
type Node struct {
	mu sync.Mutex

	nodeID uint8
	bus    can.Bus
	od     *od.ObjectDictionary
	logger *slog.Logger

	nmt  *nmt.NMT
	sdo  *sdo.Server
	rpdo [4]*pdo.RPDO
	tpdo *pdo.TPDOProducer
	ctrl *drive.Controller
}

// New builds a Node for nodeID, seeding its OD from edsContent and
// binding it to bus.
func New(bus can.Bus, logger *slog.Logger, nodeID uint8, edsContent []byte, speedFactor float64) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("node", nodeID)

	dict, err := od.ParseEDS(edsContent, nodeID)
	if err != nil {
		return nil, err
	}

	n := &Node{
		nodeID: nodeID,
		bus:    bus,
		od:     dict,
		logger: logger,
		nmt:    nmt.New(bus, logger, nodeID),
		sdo:    sdo.New(bus, dict, logger, nodeID),
		tpdo:   pdo.NewTPDOProducer(bus, dict, logger, nodeID),
		ctrl:   drive.New(dict, logger, nodeID, speedFactor),
	}
	for i := range n.rpdo {
		n.rpdo[i] = pdo.NewRPDO(dict, logger, i+1)
	}
	return n, nil
}

// NewFromConfig is a convenience constructor bridging the configuration
// file's Node record and a pre-read EDS file's content.
func NewFromConfig(bus can.Bus, logger *slog.Logger, nc config.Node, edsContent []byte, speedFactor float64) (*Node, error) {
	return New(bus, logger, nc.NodeID, edsContent, speedFactor)
}

// Boot puts NMT in Initializing and emits the boot frame.
func (n *Node) Boot() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nmt.Boot()
}

// Handle is the listener task's entry point: classify a received frame
// by COB-ID and dispatch it, synchronously, under the Node lock.
func (n *Node) Handle(frame can.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()

	frameNodeID := uint8(frame.ID & 0x7F)
	functionCode := uint32(frame.ID) & 0x780

	switch {
	case frameNodeID == 0 && functionCode == 0x000:
		n.nmt.Handle(frame)

	case frameNodeID == 0 && functionCode == 0x080:
		n.onSync()

	case frameNodeID == n.nodeID && functionCode == 0x080:
		n.logger.Debug("emcy frame received, ignoring")

	case frameNodeID == n.nodeID && functionCode == 0x200:
		n.rpdo[0].Handle(frame)
	case frameNodeID == n.nodeID && functionCode == 0x300:
		n.rpdo[1].Handle(frame)
	case frameNodeID == n.nodeID && functionCode == 0x400:
		n.rpdo[2].Handle(frame)
	case frameNodeID == n.nodeID && functionCode == 0x500:
		n.rpdo[3].Handle(frame)

	case frameNodeID == n.nodeID && functionCode == 0x600:
		n.sdo.Handle(frame)

	default:
		// Not addressed to this node; ignore.
	}
}

// onSync gathers and emits all enabled TPDOs before returning, so the
// ascending-k ordering guarantee holds across one SYNC.
func (n *Node) onSync() {
	n.tpdo.OnSync()
}

// Run starts the controller task: a fixed-cadence tick that steps the
// CiA-402 FSM until ctx is canceled.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(controllerPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.mu.Lock()
			n.ctrl.Tick()
			n.mu.Unlock()
		}
	}
}

// ObjectDictionary exposes the node's OD, primarily for tests and
// diagnostic tooling.
func (n *Node) ObjectDictionary() *od.ObjectDictionary { return n.od }
