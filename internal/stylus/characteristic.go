package stylus

import (
	"fmt"

	"github.com/srg/penlink/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CharacteristicID identifies one of the pen's GATT characteristics.
type CharacteristicID int

const (
	Battery CharacteristicID = iota
	Button
	ChargeStatus
	PenLog
	RawSensor
	SelfTest
)

// ClientCharacteristicConfigUUID is the standard CCCD used to switch notifications on.
const ClientCharacteristicConfigUUID = "00002902-0000-1000-8000-00805f9b34fb"

type characteristicInfo struct {
	name string
	uuid string
}

// characteristics is kept in declaration order so listings and logs are stable.
var characteristics = func() *orderedmap.OrderedMap[CharacteristicID, characteristicInfo] {
	m := orderedmap.New[CharacteristicID, characteristicInfo]()
	m.Set(Battery, characteristicInfo{"battery", "5a87b4ef-3bfa-76a8-e642-92933c31434f"})
	m.Set(Button, characteristicInfo{"button", "6c290d2e-1c03-aca1-ab48-a9b908bae79e"})
	m.Set(ChargeStatus, characteristicInfo{"charge-status", "92933c31-41d8-bda6-3c31-434fab48a9b9"})
	m.Set(PenLog, characteristicInfo{"pen-log", "fe3c10ee-16dd-4b73-9a37-e1e6024a3848"})
	m.Set(RawSensor, characteristicInfo{"raw-sensor", "ddb42396-ca00-4db3-b87d-2ee458279360"})
	m.Set(SelfTest, characteristicInfo{"self-test", "8bd867d3-d619-45d9-8ee0-3814dbd5b3f0"})
	return m
}()

// UUID returns the protocol identifier bound to the characteristic.
func (id CharacteristicID) UUID() string {
	if info, ok := characteristics.Get(id); ok {
		return info.uuid
	}
	return ""
}

func (id CharacteristicID) String() string {
	if info, ok := characteristics.Get(id); ok {
		return info.name
	}
	return fmt.Sprintf("characteristic(%d)", int(id))
}

// Characteristics lists every known characteristic in protocol order.
func Characteristics() []CharacteristicID {
	ids := make([]CharacteristicID, 0, characteristics.Len())
	for pair := characteristics.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// LookupCharacteristic resolves a UUID in any textual form to its CharacteristicID.
func LookupCharacteristic(uuid string) (CharacteristicID, bool) {
	for pair := characteristics.Oldest(); pair != nil; pair = pair.Next() {
		if device.EqualUUID(pair.Value.uuid, uuid) {
			return pair.Key, true
		}
	}
	return 0, false
}

// ParseCharacteristic accepts either a characteristic name ("button") or its UUID.
func ParseCharacteristic(s string) (CharacteristicID, error) {
	for pair := characteristics.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.name == s {
			return pair.Key, nil
		}
	}
	if id, ok := LookupCharacteristic(s); ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown characteristic %q", s)
}
