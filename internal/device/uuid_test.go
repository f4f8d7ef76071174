package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit UUID",
			input:    "2902",
			expected: "2902",
		},
		{
			name:     "16-bit UUID with 0x prefix",
			input:    "0x2902",
			expected: "2902",
		},
		{
			name:     "16-bit UUID with 0X prefix uppercase",
			input:    "0X2902",
			expected: "2902",
		},
		{
			name:     "32-bit SIG form",
			input:    "0000180f",
			expected: "180f",
		},
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "00002902-0000-1000-8000-00805f9b34fb",
			expected: "2902",
		},
		{
			name:     "Full Bluetooth SIG UUID uppercase",
			input:    "00002902-0000-1000-8000-00805F9B34FB",
			expected: "2902",
		},
		{
			name:     "Vendor UUID keeps 128-bit form",
			input:    "6C290D2E-1C03-ACA1-AB48-A9B908BAE79E",
			expected: "6c290d2e1c03aca1ab48a9b908bae79e",
		},
		{
			name:     "Custom UUID - wrong suffix",
			input:    "00002902-1234-5678-9abc-def012345678",
			expected: "00002902123456789abcdef012345678",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "Not hexadecimal",
			input:    "zz02",
			expected: "",
		},
		{
			name:     "Odd length",
			input:    "29021",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestEqualUUID(t *testing.T) {
	assert.True(t, EqualUUID("2902", "00002902-0000-1000-8000-00805f9b34fb"))
	assert.True(t, EqualUUID("5a87b4ef-3bfa-76a8-e642-92933c31434f", "5A87B4EF3BFA76A8E64292933C31434F"))
	assert.False(t, EqualUUID("2902", "2903"))
	assert.False(t, EqualUUID("", ""), "invalid UUIDs MUST never compare equal")
}

func TestFormatUUID(t *testing.T) {
	assert.Equal(t, "00002902-0000-1000-8000-00805f9b34fb", FormatUUID("2902"))
	assert.Equal(t, "5a87b4ef-3bfa-76a8-e642-92933c31434f", FormatUUID("5A87B4EF3BFA76A8E64292933C31434F"))
	assert.Equal(t, "not-a-uuid", FormatUUID("not-a-uuid"))
}

func TestValidateUUID(t *testing.T) {
	t.Run("valid UUIDs are normalized", func(t *testing.T) {
		got, err := ValidateUUID("0x180F", "00002a19-0000-1000-8000-00805f9b34fb")
		assert.NoError(t, err)
		assert.Equal(t, []string{"180f", "2a19"}, got)
	})

	t.Run("no UUIDs", func(t *testing.T) {
		_, err := ValidateUUID()
		assert.ErrorContains(t, err, "at least one UUID is required")
	})

	t.Run("empty UUID", func(t *testing.T) {
		_, err := ValidateUUID("180f", "")
		assert.ErrorContains(t, err, "index 1 cannot be empty")
	})

	t.Run("malformed UUID", func(t *testing.T) {
		_, err := ValidateUUID("xyz")
		assert.ErrorContains(t, err, "invalid UUID format at index 0")
	})
}
