// Package drive implements the CiA-402 drive-profile state machine: a
// control-word-driven FSM with three per-mode motion sub-state machines
// (Profile Position, Profile Velocity, Homing) and a status-word
// assembler, stepped once per controller tick.
//
// Driven by an explicit Tick call from the supervisor rather than an
// internal timer loop, so the controller period stays a single place
// in the call graph.
package drive

import (
	"log/slog"
	"time"

	"github.com/samsamfire/cia402drivesim/internal/od"
	"github.com/samsamfire/cia402drivesim/internal/scurve"
)

// Command is a decoded control-word command.
type Command uint8

const (
	CommandNone Command = iota
	CommandShutdown
	CommandSwitchOn
	CommandDisableVoltage
	CommandQuickStop
	CommandEnableOperation
	CommandEnableOperationAfterQuickStop
	CommandFaultReset
)

// State is a CiA-402 drive state.
type State uint8

const (
	StateNotReadyToSwitchOn State = iota
	StateSwitchedOnDisabled
	StateReadyToSwitchOn
	StateSwitchedOn
	StateOperationEnabled
	StateQuickStopActive
	StateFaultReactionActive
	StateFault
)

// ModeOfOperation is the OD 0x6060 mode selector.
type ModeOfOperation int8

const (
	ModeNoMode          ModeOfOperation = 0
	ModeProfilePosition ModeOfOperation = 1
	ModeProfileVelocity ModeOfOperation = 3
	ModeHoming          ModeOfOperation = 6
)

// Profile Position sub-states.
type ppState uint8

const (
	ppSetpointAcknowledge ppState = iota
	ppMoving
)

// Profile Velocity sub-states.
type pvState uint8

const (
	pvWaitingForStart pvState = iota
	pvRampingUp
	pvRotating
	pvRampingDown
)

// Homing sub-states.
type homeState uint8

const (
	homeWaitingForStart homeState = iota
	homeHoming
)

const (
	profileVelocityRampDuration = 500 * time.Millisecond
	homingDuration              = 100 * time.Millisecond
)

func getBit(v uint16, idx uint) bool { return v&(1<<idx) != 0 }

// decodeCommand tests controlword bit patterns in priority order, the
// first match winning.
func decodeCommand(cw uint16) Command {
	b7 := getBit(cw, 7)
	b3 := getBit(cw, 3)
	b2 := getBit(cw, 2)
	b1 := getBit(cw, 1)
	b0 := getBit(cw, 0)

	switch {
	case !b7 && b2 && b1 && !b0:
		return CommandShutdown
	case !b7 && !b3 && b2 && b1 && b0:
		return CommandSwitchOn
	case !b7 && !b1:
		return CommandDisableVoltage
	case !b7 && !b2 && b1:
		return CommandQuickStop
	case !b7 && b3 && b2 && b1 && b0:
		return CommandEnableOperation
	case b7:
		return CommandFaultReset
	default:
		return CommandNone
	}
}

var transitions = map[State]map[Command]State{
	StateSwitchedOnDisabled: {
		CommandShutdown: StateReadyToSwitchOn,
	},
	StateReadyToSwitchOn: {
		CommandSwitchOn:       StateSwitchedOn,
		CommandDisableVoltage: StateSwitchedOnDisabled,
	},
	StateSwitchedOn: {
		CommandEnableOperation: StateOperationEnabled,
		CommandShutdown:        StateReadyToSwitchOn,
	},
	StateOperationEnabled: {
		CommandQuickStop:      StateQuickStopActive,
		CommandDisableVoltage: StateSwitchedOnDisabled,
		CommandSwitchOn:       StateSwitchedOn,
	},
	StateQuickStopActive: {
		CommandDisableVoltage:                StateSwitchedOnDisabled,
		CommandEnableOperationAfterQuickStop: StateOperationEnabled,
	},
	StateFault: {
		CommandFaultReset: StateSwitchedOnDisabled,
	},
}

// statusBits gives the fixed bits 0..6 per drive state; bit
// indices follow the CiA-402 statusword layout: 0 ready-to-switch-on,
// 1 switched-on, 2 operation-enabled, 3 fault, 5 quick-stop, 6
// switch-on-disabled.
var statusBits = map[State]map[uint]bool{
	StateNotReadyToSwitchOn: {0: false, 1: false, 2: false, 3: false, 5: false, 6: false},
	StateSwitchedOnDisabled: {0: false, 1: false, 2: false, 3: false, 6: true},
	StateReadyToSwitchOn:    {0: true, 1: false, 2: false, 3: false, 5: true, 6: false},
	StateSwitchedOn:         {0: true, 1: true, 2: false, 3: false, 5: true, 6: false},
	StateOperationEnabled:   {0: true, 1: true, 2: true, 3: false, 5: true, 6: false},
	StateQuickStopActive:    {0: true, 1: true, 2: true, 3: false, 5: false, 6: false},
	StateFaultReactionActive: {0: true, 1: true, 2: true, 3: true, 6: false},
	StateFault:              {0: false, 1: false, 2: false, 3: true, 6: false},
}

// Controller holds one axis's CiA-402 FSM state and steps it once per
// call to Tick.
type Controller struct {
	od     *od.ObjectDictionary
	logger *slog.Logger

	state   State
	command Command

	controlOMS1History [2]bool
	relative            bool
	halt                bool

	mode ModeOfOperation

	ppStatus   ppState
	pvStatus   pvState
	homeStatus homeState

	targetReached bool
	startTravel   bool
	statusOMS1    bool
	statusOMS2    bool

	timer      time.Time
	motionMap  []scurve.Point
	statusword uint16

	speedFactor float64
}

// New returns a Controller in StateNotReadyToSwitchOn, the CiA-402
// initial state.
func New(dict *od.ObjectDictionary, logger *slog.Logger, nodeID uint8, speedFactor float64) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if speedFactor == 0 {
		speedFactor = 1
	}
	return &Controller{
		od:          dict,
		logger:      logger.With("service", "drive", "node", nodeID),
		state:       StateNotReadyToSwitchOn,
		speedFactor: speedFactor,
	}
}

// State returns the current drive state.
func (c *Controller) State() State { return c.state }

// Tick performs one controller-cadence step: read controlword/mode,
// advance the drive FSM and the active motion sub-FSM, and write back
// statusword / mode-display / actual-position.
func (c *Controller) Tick() {
	c.readControlword()
	c.readModeOfOperation()
	c.updateState()
	c.updateOperation()
	c.writeStatusword()
}

func (c *Controller) readControlword() {
	entry, err := c.od.Get(0x6040, 0)
	if err != nil {
		return
	}
	cw := entry.Value.Uint16()
	c.command = decodeCommand(cw)
	c.controlOMS1History[1] = c.controlOMS1History[0]
	c.controlOMS1History[0] = getBit(cw, 4)
	c.relative = getBit(cw, 6)
	c.halt = getBit(cw, 8)
}

func (c *Controller) readModeOfOperation() {
	entry, err := c.od.Get(0x6060, 0)
	if err != nil {
		return
	}
	mode := ModeOfOperation(entry.Value.Int8())
	if mode == c.mode {
		return
	}
	c.mode = mode
	c.ppStatus = ppSetpointAcknowledge
	c.pvStatus = pvWaitingForStart
	_ = c.od.Mutate(0x6061, 0, od.NewInt8(int8(mode)))
}

// updateState is the unconditional-for-NotReadyToSwitchOn /
// FaultReactionActive transition table.
func (c *Controller) updateState() {
	switch c.state {
	case StateNotReadyToSwitchOn:
		c.state = StateSwitchedOnDisabled
	case StateFaultReactionActive:
		c.state = StateFault
	default:
		if next, ok := transitions[c.state][c.command]; ok {
			c.state = next
		}
	}
}

func (c *Controller) risingEdge() bool {
	return c.controlOMS1History[0] && !c.controlOMS1History[1]
}

func (c *Controller) updateOperation() {
	if c.state != StateOperationEnabled {
		return
	}
	switch c.mode {
	case ModeProfilePosition:
		c.updateProfilePosition()
	case ModeProfileVelocity:
		c.updateProfileVelocity()
	case ModeHoming:
		c.updateHoming()
	}
}

func (c *Controller) updateProfilePosition() {
	switch c.ppStatus {
	case ppSetpointAcknowledge:
		if c.risingEdge() {
			c.startTravel = true
			c.targetReached = false
		}
		if !c.startTravel {
			return
		}

		maxAccelEntry, err1 := c.od.Get(0x60C5, 0)
		accelEntry, err2 := c.od.Get(0x6083, 0)
		velEntry, err3 := c.od.Get(0x6081, 0)
		targetEntry, err4 := c.od.Get(0x607A, 0)
		actualEntry, err5 := c.od.Get(0x6064, 0)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			c.statusOMS1 = false
			return
		}

		points, err := scurve.Generate(
			actualEntry.Value.Int32(),
			targetEntry.Value.Int32(),
			accelEntry.Value.Uint32(),
			maxAccelEntry.Value.Uint32(),
			velEntry.Value.Uint32(),
			c.relative,
			c.speedFactor,
		)
		if err != nil {
			c.logger.Error("invalid motion parameters", "err", err)
			c.statusOMS1 = false
			return
		}

		c.motionMap = points
		c.statusOMS1 = true
		c.startTravel = false
		c.timer = time.Now()
		c.ppStatus = ppMoving

	case ppMoving:
		c.targetReached = false
		elapsedMS := time.Since(c.timer).Milliseconds()

		if p, ok := lastPointAtOrBefore(c.motionMap, elapsedMS); ok {
			entry, err := c.od.Get(0x6064, 0)
			if err == nil && entry.Value.Int32() != p.Position {
				_ = c.od.Mutate(0x6064, 0, od.NewInt32(p.Position))
			}
		}

		last := c.motionMap[len(c.motionMap)-1]
		if elapsedMS > last.TimeMS {
			c.targetReached = true
			c.ppStatus = ppSetpointAcknowledge
		}
	}
}

// lastPointAtOrBefore returns the trajectory point with the greatest
// TimeMS <= elapsedMS.
func lastPointAtOrBefore(points []scurve.Point, elapsedMS int64) (scurve.Point, bool) {
	var best scurve.Point
	found := false
	for _, p := range points {
		if p.TimeMS <= elapsedMS {
			best = p
			found = true
		} else {
			break
		}
	}
	return best, found
}

func (c *Controller) updateProfileVelocity() {
	switch c.pvStatus {
	case pvWaitingForStart:
		c.targetReached = true
		if !c.halt {
			c.timer = time.Now()
			c.pvStatus = pvRampingUp
		}

	case pvRampingUp:
		c.targetReached = false
		if time.Since(c.timer) > profileVelocityRampDuration {
			c.pvStatus = pvRotating
		} else if c.halt {
			c.timer = time.Now()
			c.pvStatus = pvRampingDown
		}

	case pvRotating:
		c.targetReached = true
		if c.halt {
			c.timer = time.Now()
			c.pvStatus = pvRampingDown
		}

	case pvRampingDown:
		c.targetReached = false
		if time.Since(c.timer) > profileVelocityRampDuration {
			c.pvStatus = pvWaitingForStart
		}
	}
}

func (c *Controller) updateHoming() {
	switch c.homeStatus {
	case homeWaitingForStart:
		c.targetReached = true
		c.statusOMS2 = false
		if c.risingEdge() {
			c.targetReached = false
			c.timer = time.Now()
			c.homeStatus = homeHoming
		}

	case homeHoming:
		c.targetReached = false
		c.statusOMS1 = false
		c.statusOMS2 = false
		if time.Since(c.timer) > homingDuration {
			c.targetReached = true
			c.statusOMS1 = true
			c.statusOMS2 = false
			c.homeStatus = homeWaitingForStart
		}
	}
}

func (c *Controller) writeStatusword() {
	sw := c.statusword
	for bit, value := range statusBits[c.state] {
		if value {
			sw |= 1 << bit
		} else {
			sw &^= 1 << bit
		}
	}
	sw = setBit(sw, 10, c.targetReached)
	sw = setBit(sw, 12, c.statusOMS1)
	sw = setBit(sw, 13, c.statusOMS2)

	if sw == c.statusword {
		return
	}
	c.statusword = sw
	_ = c.od.Mutate(0x6041, 0, od.NewUint16(sw))
}

func setBit(v uint16, idx uint, value bool) uint16 {
	if value {
		return v | 1<<idx
	}
	return v &^ (1 << idx)
}
