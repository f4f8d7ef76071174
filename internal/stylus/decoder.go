package stylus

import "encoding/binary"

// Button characteristic type codes (payload byte 0).
const (
	TypeButtonDown byte = 0
	TypeButtonUp   byte = 1
	TypeMove       byte = 15
)

// moveRecordLen is the type byte followed by two little-endian int16 deltas.
const moveRecordLen = 5

// Decode parses a notification payload. It returns false for unknown type codes,
// characteristics without a decoder and payloads too short to hold a record.
func Decode(id CharacteristicID, payload []byte) (Event, bool) {
	if len(payload) == 0 {
		return nil, false
	}

	switch id {
	case Button:
		return decodeButton(payload)
	case Battery:
		return BatteryLevel{Percent: payload[0]}, true
	default:
		return nil, false
	}
}

func decodeButton(payload []byte) (Event, bool) {
	switch payload[0] {
	case TypeButtonDown:
		return ButtonDown{}, true
	case TypeButtonUp:
		return ButtonUp{}, true
	case TypeMove:
		if len(payload) < moveRecordLen {
			return nil, false
		}
		return Move{
			DX: int16(binary.LittleEndian.Uint16(payload[1:3])),
			DY: int16(binary.LittleEndian.Uint16(payload[3:5])),
		}, true
	default:
		return nil, false
	}
}

// DecodeNotification is Decode applied to a RawNotification.
func DecodeNotification(n RawNotification) (Event, bool) {
	return Decode(n.Characteristic, n.Payload)
}
