package mmdevice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleRegister(t *testing.T) {
	m := NewModule()
	factory := func() (Device, error) { return newFakeShutter(), nil }

	require.NoError(t, m.Register("Fake", ShutterDevice, "fake shutter", factory))
	require.NoError(t, m.Register("Other", GenericDevice, "other", factory))

	assert.Error(t, m.Register("Fake", ShutterDevice, "again", factory))
	assert.ErrorIs(t, m.Register("", ShutterDevice, "", factory), ErrInvalidInputParam)
	assert.ErrorIs(t, m.Register("Nil", ShutterDevice, "", nil), ErrInvalidInputParam)

	assert.Equal(t, []DeviceTypeInfo{
		{Name: "Fake", Type: "Shutter", Description: "fake shutter"},
		{Name: "Other", Type: "Generic", Description: "other"},
	}, m.DeviceTypes())
}

func TestModuleCreate(t *testing.T) {
	m := NewModule()
	require.NoError(t, m.Register("Fake", ShutterDevice, "", func() (Device, error) {
		return newFakeShutter(), nil
	}))

	a, err := m.Create("Fake")
	require.NoError(t, err)
	b, err := m.Create("Fake")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = m.Create("Missing")
	assert.ErrorIs(t, err, ErrUnknownDeviceType)
	assert.Equal(t, DeviceUnknownType, Code(err))
}

func TestModuleDestroy(t *testing.T) {
	m := NewModule()

	dev := newFakeShutter()
	require.NoError(t, dev.Initialize())
	require.NoError(t, m.Destroy(dev))
	assert.False(t, dev.initialized)
	assert.True(t, dev.closed)

	failing := newFakeShutter()
	failing.shutdownErr = errors.New("stuck")
	err := m.Destroy(failing)
	assert.Error(t, err)
	assert.True(t, failing.closed)

	assert.NoError(t, m.Destroy(nil))
}
