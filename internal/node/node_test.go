package node

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/cia402drivesim/internal/can"
	"github.com/samsamfire/cia402drivesim/internal/can/virtual"
	"github.com/samsamfire/cia402drivesim/internal/od"
)

const testEDS = `
[6040]
ParameterName=Controlword
ObjectType=0x7
DataType=0x06
AccessType=rw
PDOMapping=1
DefaultValue=0

[6041]
ParameterName=Statusword
ObjectType=0x7
DataType=0x06
AccessType=ro
PDOMapping=1
DefaultValue=0

[6060]
ParameterName=Modes of operation
ObjectType=0x7
DataType=0x02
AccessType=rw
DefaultValue=1

[6061]
ParameterName=Modes of operation display
ObjectType=0x7
DataType=0x02
AccessType=ro
DefaultValue=0

[6064]
ParameterName=Position actual value
ObjectType=0x7
DataType=0x04
AccessType=ro
PDOMapping=1
DefaultValue=0

[6081]
ParameterName=Profile velocity
ObjectType=0x7
DataType=0x07
AccessType=rw
DefaultValue=100

[6083]
ParameterName=Profile acceleration
ObjectType=0x7
DataType=0x07
AccessType=rw
DefaultValue=10

[60C5]
ParameterName=Max acceleration
ObjectType=0x7
DataType=0x07
AccessType=rw
DefaultValue=10

[607A]
ParameterName=Target position
ObjectType=0x7
DataType=0x04
AccessType=rw
DefaultValue=3600

[1600]
ParameterName=RPDO1 mapping
ObjectType=0x9
SubNumber=2

[1600sub0]
ParameterName=Number of mapped objects
ObjectType=0x7
DataType=0x05
AccessType=rw
DefaultValue=1

[1600sub1]
ParameterName=Mapped object 1
ObjectType=0x7
DataType=0x07
AccessType=rw
DefaultValue=0x60400010

[1A00]
ParameterName=TPDO1 mapping
ObjectType=0x9
SubNumber=2

[1A00sub0]
ParameterName=Number of mapped objects
ObjectType=0x7
DataType=0x05
AccessType=rw
DefaultValue=1

[1A00sub1]
ParameterName=Mapped object 1
ObjectType=0x7
DataType=0x07
AccessType=rw
DefaultValue=0x60410010

[1800]
ParameterName=TPDO1 communication parameter
ObjectType=0x9
SubNumber=3

[1800sub1]
ParameterName=COB-ID
ObjectType=0x7
DataType=0x07
AccessType=rw
DefaultValue=0x00000180

[1800sub2]
ParameterName=Transmission type
ObjectType=0x7
DataType=0x05
AccessType=rw
DefaultValue=1
`

func newTestNode(t *testing.T, channel string, nodeID uint8) (*Node, can.Bus) {
	t.Helper()
	bus, err := virtual.New(channel)
	require.NoError(t, err)
	require.NoError(t, bus.Connect())

	n, err := New(bus, nil, nodeID, []byte(testEDS), 1)
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(can.FrameListenerFunc(n.Handle)))
	return n, bus
}

type recordingBus struct {
	frames []can.Frame
}

func (r *recordingBus) Connect() error    { return nil }
func (r *recordingBus) Disconnect() error { return nil }
func (r *recordingBus) Send(frame can.Frame) error {
	r.frames = append(r.frames, frame)
	return nil
}
func (r *recordingBus) Subscribe(can.FrameListener) error { return nil }

func TestBootEmitsNMTFrameOnAssignedCOBID(t *testing.T) {
	rb := &recordingBus{}
	n, err := New(rb, nil, 5, []byte(testEDS), 1)
	require.NoError(t, err)

	n.Boot()

	require.Len(t, rb.frames, 1)
	assert.Equal(t, uint32(0x700+5), rb.frames[0].ID)
}

func TestSDODownloadThenUploadRoundTrip(t *testing.T) {
	rb := &recordingBus{}
	n, err := New(rb, nil, 1, []byte(testEDS), 1)
	require.NoError(t, err)

	download := can.NewFrame(0x600+1, []byte{0x2B, 0x40, 0x60, 0x00, 0x0F, 0x00, 0x00, 0x00})
	n.Handle(download)
	require.Len(t, rb.frames, 1)
	assert.Equal(t, uint32(0x580+1), rb.frames[0].ID)
	assert.Equal(t, byte(0x60), rb.frames[0].Data[0])

	upload := can.NewFrame(0x600+1, []byte{0x40, 0x40, 0x60, 0x00, 0, 0, 0, 0})
	n.Handle(upload)
	require.Len(t, rb.frames, 2)
	resp := rb.frames[1]
	assert.Equal(t, byte(0x4B), resp.Data[0])
	assert.Equal(t, uint16(0x0F), binary.LittleEndian.Uint16(resp.Data[4:6]))
}

func TestRPDOFrameUpdatesControlwordThroughDispatch(t *testing.T) {
	rb := &recordingBus{}
	n, err := New(rb, nil, 1, []byte(testEDS), 1)
	require.NoError(t, err)

	frame := can.NewFrame(0x200+1, []byte{0x0F, 0x00})
	n.Handle(frame)

	entry, err := n.ObjectDictionary().Get(0x6040, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x000F), entry.Value.Uint16())
}

func TestSyncTriggersTPDOEmission(t *testing.T) {
	rb := &recordingBus{}
	n, err := New(rb, nil, 1, []byte(testEDS), 1)
	require.NoError(t, err)

	require.NoError(t, n.ObjectDictionary().Mutate(0x6041, 0, od.NewUint16(0x0237)))

	sync := can.NewFrame(0x080, nil)
	n.Handle(sync)

	require.Len(t, rb.frames, 1)
	assert.Equal(t, uint32(0x180+1), rb.frames[0].ID)
	assert.Equal(t, uint16(0x0237), binary.LittleEndian.Uint16(rb.frames[0].Data[:2]))
}

func TestFrameAddressedToOtherNodeIgnored(t *testing.T) {
	rb := &recordingBus{}
	n, err := New(rb, nil, 1, []byte(testEDS), 1)
	require.NoError(t, err)

	n.Handle(can.NewFrame(0x600+2, []byte{0x40, 0x40, 0x60, 0x00, 0, 0, 0, 0}))

	assert.Empty(t, rb.frames)
}

func TestTwoNodesShareFramesOverVirtualBus(t *testing.T) {
	nodeA, busA := newTestNode(t, "node-test-channel", 1)
	defer busA.Disconnect()

	observer := &recordingBus{}
	observerBus, err := virtual.New("node-test-channel")
	require.NoError(t, err)
	require.NoError(t, observerBus.Connect())
	defer observerBus.Disconnect()
	require.NoError(t, observerBus.Subscribe(can.FrameListenerFunc(func(f can.Frame) {
		observer.frames = append(observer.frames, f)
	})))

	nodeA.Boot()

	require.Len(t, observer.frames, 1)
	assert.Equal(t, uint32(0x700+1), observer.frames[0].ID)
}
