package mmdevice

import "net/http"

type DeviceType int

const (
	GenericDevice DeviceType = iota
	ShutterDevice
)

func (t DeviceType) String() string {
	switch t {
	case ShutterDevice:
		return "Shutter"
	default:
		return "Generic"
	}
}

type DeviceInfo struct {
	Name        string     `json:"DeviceName"`
	Description string     `json:"Description"`
	Type        DeviceType `json:"-"`
	TypeName    string     `json:"DeviceType"`
	Number      int        `json:"DeviceNumber"`
	Label       string     `json:"Label"`
}

// Device is the lifecycle surface every adapter implements.
type Device interface {
	DeviceInfo() DeviceInfo
	Properties() *Properties

	Initialize() error
	Shutdown() error
	Busy() bool
}

// Shutter is a device that can block or release a light path.
type Shutter interface {
	Device

	SetOpen(open bool) error
	GetOpen() (bool, error)
	Fire(deltaT float64) error
}

// SetupHandler is implemented by devices that serve their own setup form.
type SetupHandler interface {
	HandleSetup(w http.ResponseWriter, r *http.Request)
}

// Closer is implemented by devices holding resources beyond Shutdown.
type Closer interface {
	Close() error
}
