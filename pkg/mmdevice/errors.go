package mmdevice

import (
	"errors"
	"fmt"
)

// Host status codes shared by every device adapter.
const (
	DeviceOK                    = 0
	DeviceErr                   = 1
	DeviceInvalidProperty       = 2
	DeviceInvalidPropertyValue  = 3
	DeviceDuplicateProperty     = 4
	DeviceInvalidPropertyType   = 5
	DeviceUnsupportedCommand    = 11
	DeviceUnknownPosition       = 12
	DeviceSerialCommandFailed   = 14
	DeviceSerialInvalidAnswer   = 16
	DeviceSerialTimeout         = 17
	DeviceInvalidInputParam     = 21
	DeviceInvalidPropertyLimits = 24
	DeviceUnknownType           = 30
)

// DeviceError is an error carrying a host status code.
type DeviceError struct {
	Code    int
	Message string
}

func NewError(code int, message string) *DeviceError {
	return &DeviceError{Code: code, Message: message}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Is reports whether target is a DeviceError with the same code.
func (e *DeviceError) Is(target error) bool {
	var de *DeviceError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

var (
	ErrGeneric               = NewError(DeviceErr, "generic device error")
	ErrInvalidProperty       = NewError(DeviceInvalidProperty, "invalid property")
	ErrInvalidPropertyValue  = NewError(DeviceInvalidPropertyValue, "invalid property value")
	ErrDuplicateProperty     = NewError(DeviceDuplicateProperty, "duplicate property")
	ErrInvalidPropertyType   = NewError(DeviceInvalidPropertyType, "invalid property type")
	ErrUnsupportedCommand    = NewError(DeviceUnsupportedCommand, "command not supported by the device")
	ErrUnknownPosition       = NewError(DeviceUnknownPosition, "device position is unknown")
	ErrSerialCommandFailed   = NewError(DeviceSerialCommandFailed, "serial command failed")
	ErrSerialInvalidAnswer   = NewError(DeviceSerialInvalidAnswer, "invalid answer from serial port")
	ErrSerialTimeout         = NewError(DeviceSerialTimeout, "serial answer timed out")
	ErrInvalidInputParam     = NewError(DeviceInvalidInputParam, "invalid input parameter")
	ErrInvalidPropertyLimits = NewError(DeviceInvalidPropertyLimits, "property does not accept limits")
	ErrUnknownDeviceType     = NewError(DeviceUnknownType, "unknown device type")
)

// Code returns the host status code for err: DeviceOK for nil, the code of
// the first DeviceError in the chain, or DeviceErr for anything else.
func Code(err error) int {
	if err == nil {
		return DeviceOK
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Code
	}
	return DeviceErr
}
