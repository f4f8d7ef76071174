package gesture

import (
	"fmt"
	"time"

	"github.com/srg/penlink/internal/stylus"
)

// DeadZone is the motion magnitude (protocol units) a delta must exceed on
// either axis before it counts as a swipe.
const DeadZone = 500

// Direction of a swipe. Positive Y is physically downward motion.
type Direction int

const (
	PositiveX Direction = iota
	NegativeX
	PositiveY
	NegativeY
)

func (d Direction) String() string {
	switch d {
	case PositiveX:
		return "+X"
	case NegativeX:
		return "-X"
	case PositiveY:
		return "+Y"
	case NegativeY:
		return "-Y"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Kind distinguishes a button click from a directional swipe.
type Kind int

const (
	Click Kind = iota
	Swipe
)

func (k Kind) String() string {
	switch k {
	case Click:
		return "click"
	case Swipe:
		return "swipe"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action is a user-facing outcome of a press cycle.
// Direction is only meaningful for Swipe; DownAt/UpAt only for Click.
type Action struct {
	Kind      Kind
	Direction Direction
	DownAt    time.Time
	UpAt      time.Time
}

func (a Action) String() string {
	if a.Kind == Swipe {
		return "swipe " + a.Direction.String()
	}
	return "click"
}

// Classifier turns decoded pen events into actions. A press cycle yields either
// one click or any number of swipes, never both. Not safe for concurrent use.
type Classifier struct {
	downAt     time.Time
	hadGesture bool
}

// NewClassifier returns a classifier with no press in progress.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Handle feeds one event observed at the given time.
func (c *Classifier) Handle(ev stylus.Event, at time.Time) (Action, bool) {
	switch e := ev.(type) {
	case stylus.ButtonDown:
		c.downAt = at
		c.hadGesture = false
		return Action{}, false

	case stylus.ButtonUp:
		hadGesture := c.hadGesture
		c.hadGesture = false
		if hadGesture {
			return Action{}, false
		}
		// An up without a preceding down keeps the zero down time.
		return Action{Kind: Click, DownAt: c.downAt, UpAt: at}, true

	case stylus.Move:
		dir, ok := Classify(e.DX, e.DY)
		if !ok {
			return Action{}, false
		}
		c.hadGesture = true
		return Action{Kind: Swipe, Direction: dir}, true

	default:
		return Action{}, false
	}
}

// Reset forgets any press in progress.
func (c *Classifier) Reset() {
	c.downAt = time.Time{}
	c.hadGesture = false
}

// Classify maps a motion delta to a swipe direction. Equal magnitudes resolve to the Y axis.
func Classify(dx, dy int16) (Direction, bool) {
	ax, ay := abs(dx), abs(dy)
	if ax <= DeadZone && ay <= DeadZone {
		return 0, false
	}
	if ax > ay {
		if dx > 0 {
			return PositiveX, true
		}
		return NegativeX, true
	}
	if dy > 0 {
		return PositiveY, true
	}
	return NegativeY, true
}

// abs widens before negating so -32768 does not overflow.
func abs(v int16) int32 {
	if v < 0 {
		return -int32(v)
	}
	return int32(v)
}
