package mmdevice

import (
	"errors"
	"fmt"
	"sync"
)

// Factory creates a new, uninitialized device instance.
type Factory func() (Device, error)

type DeviceTypeInfo struct {
	Name        string `json:"Name"`
	Type        string `json:"Type"`
	Description string `json:"Description"`
}

type moduleEntry struct {
	info    DeviceTypeInfo
	factory Factory
}

// Module is a registry of device types keyed by a stable name. Instances
// returned by Create are owned by the caller and released with Destroy.
type Module struct {
	mu      sync.RWMutex
	entries map[string]moduleEntry
	order   []string
}

func NewModule() *Module {
	return &Module{entries: make(map[string]moduleEntry)}
}

func (m *Module) Register(name string, typ DeviceType, description string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: device type needs a name and a factory", ErrInvalidInputParam)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; ok {
		return fmt.Errorf("device type %s already registered", name)
	}
	m.entries[name] = moduleEntry{
		info: DeviceTypeInfo{
			Name:        name,
			Type:        typ.String(),
			Description: description,
		},
		factory: factory,
	}
	m.order = append(m.order, name)
	return nil
}

// DeviceTypes lists the registered device types in registration order.
func (m *Module) DeviceTypes() []DeviceTypeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]DeviceTypeInfo, 0, len(m.order))
	for _, name := range m.order {
		infos = append(infos, m.entries[name].info)
	}
	return infos
}

func (m *Module) Create(name string) (Device, error) {
	m.mu.RLock()
	entry, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeviceType, name)
	}
	return entry.factory()
}

// Destroy shuts the device down and releases any resource it still holds,
// even when the shutdown fails.
func (m *Module) Destroy(dev Device) error {
	if dev == nil {
		return nil
	}
	err := dev.Shutdown()
	if c, ok := dev.(Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
