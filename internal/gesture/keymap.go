package gesture

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how actions are translated to keys.
type Mode int

const (
	Navigation Mode = iota
	Camera
	Media
)

var modeNames = [...]string{"navigation", "camera", "media"}

// Modes lists every mode in preference order.
func Modes() []Mode {
	return []Mode{Navigation, Camera, Media}
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the stored preference index ("0", "1", "2") or a mode name.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 0 && n < len(modeNames) {
			return Mode(n), nil
		}
		return Navigation, fmt.Errorf("mode index %d out of range", n)
	}
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return Navigation, fmt.Errorf("unknown mode %q", s)
}

// KeyCode is a Linux input event key code (linux/input-event-codes.h).
type KeyCode uint16

const (
	KeyEnter        KeyCode = 28
	KeyUp           KeyCode = 103
	KeyLeft         KeyCode = 105
	KeyRight        KeyCode = 106
	KeyDown         KeyCode = 108
	KeyVolumeDown   KeyCode = 114
	KeyVolumeUp     KeyCode = 115
	KeyNextSong     KeyCode = 163
	KeyPlayPause    KeyCode = 164
	KeyPreviousSong KeyCode = 165
	KeyCamera       KeyCode = 212
	KeyUnknown      KeyCode = 240
)

var keyNames = map[KeyCode]string{
	KeyEnter:        "ENTER",
	KeyUp:           "DPAD_UP",
	KeyDown:         "DPAD_DOWN",
	KeyLeft:         "DPAD_LEFT",
	KeyRight:        "DPAD_RIGHT",
	KeyCamera:       "CAMERA_SHUTTER",
	KeyPlayPause:    "MEDIA_PLAY_PAUSE",
	KeyNextSong:     "MEDIA_NEXT",
	KeyPreviousSong: "MEDIA_PREVIOUS",
	KeyVolumeDown:   "VOLUME_DOWN",
	KeyVolumeUp:     "VOLUME_UP",
	KeyUnknown:      "UNKNOWN",
}

func (k KeyCode) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KEY_%d", uint16(k))
}

// row is one mode's mapping: click followed by +X, -X, +Y, -Y.
type row struct {
	click KeyCode
	swipe [4]KeyCode
}

var keymap = map[Mode]row{
	Navigation: {
		click: KeyEnter,
		swipe: [4]KeyCode{PositiveX: KeyRight, NegativeX: KeyLeft, PositiveY: KeyDown, NegativeY: KeyUp},
	},
	Camera: {
		click: KeyCamera,
		swipe: [4]KeyCode{KeyUnknown, KeyUnknown, KeyUnknown, KeyUnknown},
	},
	Media: {
		click: KeyPlayPause,
		swipe: [4]KeyCode{PositiveX: KeyNextSong, NegativeX: KeyPreviousSong, PositiveY: KeyVolumeDown, NegativeY: KeyVolumeUp},
	},
}

// KeyFor resolves the key an action produces in the given mode.
// Combinations without a mapping resolve to KeyUnknown.
func KeyFor(mode Mode, action Action) KeyCode {
	r, ok := keymap[mode]
	if !ok {
		return KeyUnknown
	}
	switch action.Kind {
	case Click:
		return r.click
	case Swipe:
		if action.Direction < 0 || int(action.Direction) >= len(r.swipe) {
			return KeyUnknown
		}
		return r.swipe[action.Direction]
	default:
		return KeyUnknown
	}
}

// KeyCodes lists every key code the keymap can emit, for device capability registration.
func KeyCodes() []KeyCode {
	seen := make(map[KeyCode]bool)
	var codes []KeyCode
	add := func(k KeyCode) {
		if !seen[k] {
			seen[k] = true
			codes = append(codes, k)
		}
	}
	for _, m := range Modes() {
		r := keymap[m]
		add(r.click)
		for _, k := range r.swipe {
			add(k)
		}
	}
	return codes
}
