package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEDS = `
[1000]
ParameterName=Device type
ObjectType=0x7
DataType=0x07
AccessType=ro
PDOMapping=0
DefaultValue=0x00020192

[1001]
ParameterName=Error register
ObjectType=0x7
DataType=0x05
AccessType=ro
PDOMapping=1
DefaultValue=0

[2000]
ParameterName=Axis node base
ObjectType=0x7
DataType=0x05
AccessType=rw
PDOMapping=0
DefaultValue=$NODEID+0x10

[2001]
ParameterName=Unsupported record
ObjectType=0x9
SubNumber=2

[2001sub0]
ParameterName=Highest sub-index supported
ObjectType=0x7
DataType=0x05
AccessType=ro
DefaultValue=1
`

func TestParseEDSExpeditedEntries(t *testing.T) {
	d, err := ParseEDS([]byte(sampleEDS), 5)
	require.NoError(t, err)

	e, err := d.Get(0x1000, 0)
	require.NoError(t, err)
	assert.Equal(t, "Device type", e.Name)
	assert.Equal(t, KindUint32, e.Value.Kind())
	assert.Equal(t, uint32(0x00020192), e.Value.Uint32())
	assert.True(t, e.Access.Readable())
	assert.False(t, e.Access.Writable())

	e, err = d.Get(0x1001, 0)
	require.NoError(t, err)
	assert.True(t, e.PDOMappable)
	assert.Equal(t, uint8(0), e.Value.Uint8())
}

func TestParseEDSNodeIDSubstitution(t *testing.T) {
	d, err := ParseEDS([]byte(sampleEDS), 5)
	require.NoError(t, err)

	e, err := d.Get(0x2000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x15), e.Value.Uint8())
}

func TestParseEDSSeedsVarMembersOfNonVarObjects(t *testing.T) {
	d, err := ParseEDS([]byte(sampleEDS), 5)
	require.NoError(t, err)

	// The bare [2001] record header (ObjectType 0x9) is skipped, but its
	// [2001sub0] member is itself declared ObjectType 0x7 and is seeded.
	e, err := d.Get(0x2001, 0)
	require.NoError(t, err)
	assert.Equal(t, "Highest sub-index supported", e.Name)
}
