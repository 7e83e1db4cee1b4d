package od

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Section naming, $NODEID default-value substitution, and the
// ObjectType==0x7 seeding rule are parsed against gopkg.in/ini.v1.

var (
	idxRe    = regexp.MustCompile(`^[0-9A-Fa-f]{1,4}$`)
	subIdxRe = regexp.MustCompile(`^([0-9A-Fa-f]{1,4})[sS]ub([0-9A-Fa-f]+)$`)
)

// dataTypeKind maps the CANopen object datatype codes this store
// understands onto our Kind; any other code yields KindUnknown.
func dataTypeKind(code string) Kind {
	n, err := strconv.ParseUint(strings.TrimPrefix(code, "0x"), 16, 16)
	if err != nil {
		return KindUnknown
	}
	switch n {
	case 0x01:
		return KindBool
	case 0x02:
		return KindInt8
	case 0x03:
		return KindInt16
	case 0x04:
		return KindInt32
	case 0x05:
		return KindUint8
	case 0x06:
		return KindUint16
	case 0x07:
		return KindUint32
	case 0x08:
		return KindReal32
	default:
		return KindUnknown
	}
}

// parseDefaultValue mirrors eds.rs's parse_default_value: it resolves a
// "$NODEID+0x..." expression, a bare "0x..." hex literal, or a decimal
// literal, against the given node id.
func parseDefaultValue(raw string, kind Kind, nodeID uint8) Value {
	raw = strings.TrimSpace(raw)
	base := raw
	offset := uint64(0)
	if strings.HasPrefix(strings.ToUpper(raw), "$NODEID") {
		rest := raw[len("$NODEID"):]
		rest = strings.TrimSpace(rest)
		rest = strings.TrimPrefix(rest, "+")
		base = strings.TrimSpace(rest)
		offset = uint64(nodeID)
	}

	var n uint64
	var err error
	switch {
	case base == "":
		n = 0
	case strings.HasPrefix(base, "0x") || strings.HasPrefix(base, "0X"):
		n, err = strconv.ParseUint(base[2:], 16, 32)
	default:
		n, err = strconv.ParseUint(base, 10, 32)
	}
	if err != nil {
		n = 0
	}
	n += offset

	switch kind {
	case KindBool:
		return NewBool(n != 0)
	case KindInt8:
		return NewInt8(int8(n))
	case KindInt16:
		return NewInt16(int16(n))
	case KindInt32:
		return NewInt32(int32(n))
	case KindUint8:
		return NewUint8(uint8(n))
	case KindUint16:
		return NewUint16(uint16(n))
	case KindUint32:
		return NewUint32(uint32(n))
	case KindReal32:
		return NewReal32(float32(n))
	default:
		return NewUnknown()
	}
}

// ParseEDS seeds an ObjectDictionary from EDS-formatted content. Only
// sections whose ObjectType is 0x7 (VAR) are seeded; ARRAY/RECORD
// objects (0x8/0x9) are not supported as standalone entries, though
// their individually-declared VAR sub-sections still seed normally.
func ParseEDS(content []byte, nodeID uint8) (*ObjectDictionary, error) {
	file, err := ini.Load(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEdsFormat, err)
	}

	result := New()
	for _, section := range file.Sections() {
		name := section.Name()

		if m := idxRe.FindStringSubmatch(name); m != nil {
			if err := seedVar(result, section, name, 0, nodeID); err != nil {
				return nil, err
			}
			continue
		}
		if m := subIdxRe.FindStringSubmatch(name); m != nil {
			subIdx, err := strconv.ParseUint(m[2], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: bad sub-index in [%s]", ErrEdsFormat, name)
			}
			if err := seedVar(result, section, m[1], uint8(subIdx), nodeID); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func seedVar(od *ObjectDictionary, section *ini.Section, idxHex string, subIndex uint8, nodeID uint8) error {
	objectType := section.Key("ObjectType").String()
	if objectType != "" && objectType != "0x7" && objectType != "0x07" {
		return nil
	}

	idx, err := strconv.ParseUint(idxHex, 16, 16)
	if err != nil {
		return fmt.Errorf("%w: bad index %q", ErrEdsFormat, idxHex)
	}

	kind := dataTypeKind(section.Key("DataType").String())
	access := parseAccessType(section.Key("AccessType").String())
	mappable := section.Key("PDOMapping").String() == "1"
	value := parseDefaultValue(section.Key("DefaultValue").String(), kind, nodeID)

	od.Add(&Entry{
		Index:       uint16(idx),
		SubIndex:    subIndex,
		Name:        section.Key("ParameterName").String(),
		Access:      access,
		PDOMappable: mappable,
		Value:       value,
	})
	return nil
}

func parseAccessType(s string) AccessType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ro", "const":
		return AccessReadOnly
	case "wo":
		return AccessWriteOnly
	default:
		return AccessReadWrite
	}
}
