package amh

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"mmshutter/pkg/mmdevice"
)

func TestFormatCommand(t *testing.T) {
	for v := 0; v <= 100; v++ {
		assert.Equal(t, fmt.Sprintf("LIGHT,%d", v), formatCommand(v))
	}
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected answer
	}{
		{
			name:     "Acknowledge",
			input:    "R",
			expected: answer{kind: answerOK},
		},
		{
			name:     "Acknowledge with trailing text",
			input:    "READY",
			expected: answer{kind: answerOK},
		},
		{
			name:     "Device error",
			input:    "E,7",
			expected: answer{kind: answerDeviceError, errNo: 7},
		},
		{
			name:     "Device error with two digits",
			input:    "E,12",
			expected: answer{kind: answerDeviceError, errNo: 12},
		},
		{
			name:     "Device error with any separator",
			input:    "E:3",
			expected: answer{kind: answerDeviceError, errNo: 3},
		},
		{
			name:     "Device error without a number",
			input:    "E,x",
			expected: answer{kind: answerDeviceError, errNo: 0},
		},
		{
			name:     "Error number out of range",
			input:    "E,99999999999999999999",
			expected: answer{kind: answerBadErrorNumber},
		},
		{
			name:     "Too short to carry an error number",
			input:    "E,",
			expected: answer{kind: answerUnrecognized},
		},
		{
			name:     "Empty answer",
			input:    "",
			expected: answer{kind: answerUnrecognized},
		},
		{
			name:     "Lowercase ack",
			input:    "r",
			expected: answer{kind: answerUnrecognized},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseAnswer(tc.input))
		})
	}
}

func TestLeadingInt(t *testing.T) {
	tests := []struct {
		input string
		n     int
		ok    bool
	}{
		{"", 0, true},
		{"42", 42, true},
		{" 42abc", 42, true},
		{"-3", -3, true},
		{"abc", 0, true},
		{"99999", 99999, true},
		{"100000", 0, false},
		{"99999999999999999999", 0, false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%q", tc.input), func(t *testing.T) {
			n, ok := leadingInt(tc.input)
			assert.Equal(t, tc.n, n)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestDeviceError(t *testing.T) {
	err := DeviceError(7)
	assert.Equal(t, 10107, mmdevice.Code(err))
	assert.ErrorIs(t, err, mmdevice.NewError(10107, ""))
}
