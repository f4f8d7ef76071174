package stylus

import (
	"fmt"
	"time"
)

// RawNotification is a characteristic value pushed by the pen.
type RawNotification struct {
	Characteristic CharacteristicID
	Payload        []byte
	ReceivedAt     time.Time
}

// Event is a decoded pen event. The set of implementations is closed:
// ButtonDown, ButtonUp, Move and BatteryLevel.
type Event interface {
	isEvent()
	fmt.Stringer
}

// ButtonDown is reported when the side button is pressed.
type ButtonDown struct{}

// ButtonUp is reported when the side button is released.
type ButtonUp struct{}

// Move is a relative motion report in protocol units.
type Move struct {
	DX int16
	DY int16
}

// BatteryLevel is the pen's charge in percent.
type BatteryLevel struct {
	Percent uint8
}

func (ButtonDown) isEvent()   {}
func (ButtonUp) isEvent()     {}
func (Move) isEvent()         {}
func (BatteryLevel) isEvent() {}

func (ButtonDown) String() string { return "button-down" }
func (ButtonUp) String() string   { return "button-up" }
func (m Move) String() string     { return fmt.Sprintf("move(dx=%d, dy=%d)", m.DX, m.DY) }
func (b BatteryLevel) String() string {
	return fmt.Sprintf("battery(%d%%)", b.Percent)
}
