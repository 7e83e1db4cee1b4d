// Package pdo implements the CiA-301 process data objects: RPDO
// unpack-and-store on receipt, and TPDO gather-and-emit on SYNC.
//
// No event-timer, inhibit-time, or streamer-extension machinery: the
// comm-parameter surface is limited to the enable bit, transmission
// type, and mapping record.
package pdo

import (
	"log/slog"

	"github.com/samsamfire/cia402drivesim/internal/can"
	"github.com/samsamfire/cia402drivesim/internal/od"
)

// mappingEntry is one decoded UInt32 PDO-mapping record: (index,
// subIndex, bit-length), per invariant I3.
type mappingEntry struct {
	index    uint16
	subIndex uint8
	bitLen   uint8
}

func decodeMappingEntry(raw uint32) mappingEntry {
	return mappingEntry{
		index:    uint16(raw >> 16),
		subIndex: uint8(raw >> 8),
		bitLen:   uint8(raw),
	}
}

// readMapping loads the count-prefixed mapping record at base (0x1600+k
// or 0x1A00+k).
func readMapping(dict *od.ObjectDictionary, base uint16) ([]mappingEntry, error) {
	countEntry, err := dict.Get(base, 0)
	if err != nil {
		return nil, err
	}
	count := countEntry.Value.Uint8()

	entries := make([]mappingEntry, 0, count)
	for i := uint8(1); i <= count; i++ {
		e, err := dict.Get(base, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, decodeMappingEntry(e.Value.Uint32()))
	}
	return entries, nil
}

// RPDO consumes a received process data frame for one of the four
// receive PDOs (n ∈ {1..4}), unpacking it per its 0x1600+(n-1) mapping.
type RPDO struct {
	dict   *od.ObjectDictionary
	logger *slog.Logger
	n      int // 1..4
}

// NewRPDO returns a consumer bound to RPDO number n (1..4).
func NewRPDO(dict *od.ObjectDictionary, logger *slog.Logger, n int) *RPDO {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPDO{dict: dict, logger: logger.With("service", "rpdo", "n", n), n: n}
}

// Handle unpacks frame into the OD per the current 0x1600+(n-1) mapping.
// Each mapping entry consumes bitLen/8 input bytes, decoded at the
// destination entry's own width. A bit-length under 8 ends unpacking,
// as does running out of input bytes mid-mapping; both stop silently.
func (r *RPDO) Handle(frame can.Frame) {
	base := uint16(0x1600 + (r.n - 1))
	mapping, err := readMapping(r.dict, base)
	if err != nil {
		r.logger.Error("rpdo: mapping unavailable", "err", err)
		return
	}

	data := frame.Data[:frame.DLC]
	offset := 0
	for _, m := range mapping {
		width := m.bitLen / 8
		if width == 0 || offset+int(width) > len(data) {
			return
		}
		chunk := data[offset : offset+int(width)]
		offset += int(width)

		entry, err := r.dict.Get(m.index, m.subIndex)
		if err != nil {
			r.logger.Warn("rpdo: unmapped destination", "index", m.index, "subindex", m.subIndex)
			continue
		}
		newValue, err := entry.Value.DecodeLE(chunk)
		if err != nil {
			r.logger.Warn("rpdo: type mismatch", "index", m.index, "subindex", m.subIndex)
			continue
		}
		if err := r.dict.Mutate(m.index, m.subIndex, newValue); err != nil {
			r.logger.Warn("rpdo: mutate failed", "index", m.index, "subindex", m.subIndex, "err", err)
		}
	}
}

// minSyncTransmissionType / maxSyncTransmissionType bound the CiA-301-conformant
// SYNC-triggered range rather than accepting a single fixed literal.
const (
	minSyncTransmissionType = 1
	maxSyncTransmissionType = 240
)

// TPDOProducer gathers and emits TPDOs 0..7 on every SYNC.
type TPDOProducer struct {
	bus    can.Bus
	dict   *od.ObjectDictionary
	logger *slog.Logger
	nodeID uint8
}

// NewTPDOProducer returns a producer that emits on the given bus for nodeID.
func NewTPDOProducer(bus can.Bus, dict *od.ObjectDictionary, logger *slog.Logger, nodeID uint8) *TPDOProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TPDOProducer{bus: bus, dict: dict, logger: logger.With("service", "tpdo", "node", nodeID), nodeID: nodeID}
}

// OnSync gathers and emits every enabled TPDO k in 0..7, in ascending
// order, before returning.
func (p *TPDOProducer) OnSync() {
	for k := 0; k < 8; k++ {
		p.emit(k)
	}
}

func (p *TPDOProducer) emit(k int) {
	commBase := uint16(0x1800 + k)
	enableEntry, err := p.dict.Get(commBase, 1)
	if err != nil {
		return
	}
	if enableEntry.Value.Uint32()&(1<<31) != 0 {
		return // disabled
	}

	typeEntry, err := p.dict.Get(commBase, 2)
	if err != nil {
		return
	}
	transmissionType := typeEntry.Value.Uint8()
	if transmissionType < minSyncTransmissionType || transmissionType > maxSyncTransmissionType {
		return
	}

	mapBase := uint16(0x1A00 + k)
	mapping, err := readMapping(p.dict, mapBase)
	if err != nil {
		p.logger.Error("tpdo: mapping unavailable", "k", k, "err", err)
		return
	}

	var payload []byte
	for _, m := range mapping {
		entry, err := p.dict.Get(m.index, m.subIndex)
		if err != nil {
			p.logger.Warn("tpdo: unmapped source", "k", k, "index", m.index, "subindex", m.subIndex)
			continue
		}
		if int(entry.Value.Kind().Width())*8 != int(m.bitLen) {
			p.logger.Warn("tpdo: width mismatch, skipping", "k", k, "index", m.index, "subindex", m.subIndex)
			continue
		}
		payload = entry.Value.EncodeLE(payload)
	}

	cobID := uint32(0x180 + k*0x100 + int(p.nodeID))
	frame := can.NewFrame(cobID, payload)
	if err := p.bus.Send(frame); err != nil {
		p.logger.Error("tpdo: send failed", "k", k, "err", err)
	}
}
