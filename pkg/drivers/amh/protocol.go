package amh

import (
	"fmt"
	"strings"

	"mmshutter/pkg/mmdevice"
)

// Adapter specific error codes.
const (
	codePortChangeForbidden = 10004
	codeUnrecognizedAnswer  = 10009
	codeUnspecifiedError    = 10010

	// Errors reported by the device are mapped to codeDeviceErrorOffset+n.
	codeDeviceErrorOffset = 10100
)

var (
	ErrPortChangeForbidden = mmdevice.NewError(codePortChangeForbidden, "port cannot be changed after initialization")
	ErrUnrecognizedAnswer  = mmdevice.NewError(codeUnrecognizedAnswer, "unrecognised answer received from the device")
	ErrUnspecifiedError    = mmdevice.NewError(codeUnspecifiedError, "unspecified error")
)

// DeviceError returns the error for error number errNo reported by the device.
func DeviceError(errNo int) error {
	return mmdevice.NewError(codeDeviceErrorOffset+errNo, fmt.Sprintf("device reported error %d", errNo))
}

const (
	cmdLight   = "LIGHT"
	terminator = "\r"

	answerAck   = 'R'
	answerError = 'E'
)

type answerKind int

const (
	answerOK answerKind = iota
	answerDeviceError
	answerUnrecognized
	// An E answer whose error number does not fit the code range.
	answerBadErrorNumber
)

// Device error numbers above this are not mapped to a code.
const maxDeviceErrNo = 99999

type answer struct {
	kind  answerKind
	errNo int
}

// formatCommand returns the command setting the light output to level.
func formatCommand(level int) string {
	return fmt.Sprintf("%s,%d", cmdLight, level)
}

// Answers have the format:
// "R..."   acknowledge
// "E?<n>"  error number n, the second character is a separator
// Anything else is not recognised.
func parseAnswer(msg string) answer {
	switch {
	case strings.HasPrefix(msg, string(answerAck)):
		return answer{kind: answerOK}
	case strings.HasPrefix(msg, string(answerError)) && len(msg) > 2:
		errNo, ok := leadingInt(msg[2:])
		if !ok {
			return answer{kind: answerBadErrorNumber}
		}
		return answer{kind: answerDeviceError, errNo: errNo}
	default:
		return answer{kind: answerUnrecognized}
	}
}

// leadingInt parses the decimal number at the start of s, ignoring leading
// blanks and trailing garbage. It returns 0 when there is no number and
// false when the magnitude exceeds maxDeviceErrNo.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		if n > maxDeviceErrNo {
			return 0, false
		}
	}
	if neg {
		return -n, true
	}
	return n, true
}
