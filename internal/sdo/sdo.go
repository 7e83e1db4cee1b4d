// Package sdo implements an expedited-only CiA-301 SDO server: a
// synchronous request/response responder against an object dictionary,
// with no segmented or block transfer and no abort-frame protocol
// (Non-goals).
//
// Direct call/response, no internal state machine and no rx channel,
// since expedited transfer never spans more than one frame.
package sdo

import (
	"encoding/binary"
	"log/slog"

	"github.com/samsamfire/cia402drivesim/internal/can"
	"github.com/samsamfire/cia402drivesim/internal/od"
)

const (
	ccsInitiateDownload uint8 = 1
	ccsInitiateUpload   uint8 = 2

	scsInitiateDownload uint8 = 3
	scsInitiateUpload   uint8 = 2
)

// Server answers expedited SDO requests against an object dictionary.
type Server struct {
	bus    can.Bus
	od     *od.ObjectDictionary
	logger *slog.Logger
	nodeID uint8
}

// New returns an SDO server for nodeID.
func New(bus can.Bus, dict *od.ObjectDictionary, logger *slog.Logger, nodeID uint8) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:    bus,
		od:     dict,
		logger: logger.With("service", "sdo", "node", nodeID),
		nodeID: nodeID,
	}
}

// Handle processes a received SDO client request frame addressed to
// COB 0x600+nodeID. A request with DLC != 8 or an unsupported command
// specifier is logged and dropped: no abort response is ever sent.
func (s *Server) Handle(frame can.Frame) {
	if frame.DLC != 8 {
		s.logger.Error("malformed sdo request", "dlc", frame.DLC)
		return
	}
	data := frame.Data
	ccs := data[0] >> 5
	index := binary.LittleEndian.Uint16(data[1:3])
	subIndex := data[3]

	switch ccs {
	case ccsInitiateUpload:
		s.upload(index, subIndex)
	case ccsInitiateDownload:
		s.download(index, subIndex, data[4:8])
	default:
		s.logger.Error("unsupported sdo command specifier", "ccs", ccs)
	}
}

// upload responds to an InitiateUpload request. Boolean and Real32 are
// not defined on this wire direction in this spec's scope and fail soft.
func (s *Server) upload(index uint16, subIndex uint8) {
	entry, err := s.od.Get(index, subIndex)
	if err != nil {
		s.logger.Error("sdo upload: entry not found", "index", index, "subindex", subIndex)
		return
	}

	var n uint8
	switch entry.Value.Kind() {
	case od.KindInt8, od.KindUint8:
		n = 3
	case od.KindInt16, od.KindUint16:
		n = 2
	case od.KindInt32, od.KindUint32:
		n = 0
	default:
		s.logger.Error("sdo upload: unsupported type for upload", "index", index, "subindex", subIndex, "kind", entry.Value.Kind())
		return
	}

	resp := [8]byte{}
	resp[0] = scsInitiateUpload<<5 | 1<<1 | n<<2 | 1
	binary.LittleEndian.PutUint16(resp[1:3], index)
	resp[3] = subIndex
	copy(resp[4:], entry.Value.EncodeLE(nil))

	s.send(resp)
}

// download responds to an InitiateDownload request, reinterpreting
// payload as the entry's existing tag width regardless of the request
// header's size bits.
func (s *Server) download(index uint16, subIndex uint8, payload []byte) {
	entry, err := s.od.Get(index, subIndex)
	if err != nil {
		s.logger.Error("sdo download: entry not found", "index", index, "subindex", subIndex)
		return
	}

	newValue, err := entry.Value.DecodeLE(payload)
	if err != nil {
		s.logger.Error("sdo download: unsupported type or short payload", "index", index, "subindex", subIndex)
		return
	}
	if err := s.od.Mutate(index, subIndex, newValue); err != nil {
		s.logger.Error("sdo download: mutate failed", "index", index, "subindex", subIndex, "err", err)
		return
	}

	resp := [8]byte{}
	resp[0] = scsInitiateDownload << 5
	binary.LittleEndian.PutUint16(resp[1:3], index)
	resp[3] = subIndex
	s.send(resp)
}

func (s *Server) send(payload [8]byte) {
	cobID := 0x580 + uint32(s.nodeID)
	frame := can.NewFrame(cobID, payload[:])
	if err := s.bus.Send(frame); err != nil {
		s.logger.Error("failed to send sdo response", "err", err)
	}
}
