package mmdevice

import "net/http"

type fakeShutter struct {
	props       *Properties
	open        bool
	initialized bool
	closed      bool
	shutdownErr error
}

func newFakeShutter() *fakeShutter {
	f := &fakeShutter{props: NewProperties("Fake")}
	f.props.Create(KeywordName, "Fake", String, true, nil, false)
	f.props.Create(KeywordPort, "Undefined", String, false, nil, true)
	f.props.Create(KeywordState, "0", Integer, false, func(p *Property, act ActionType) error {
		if act == AfterSet {
			f.open = p.Value() == "1"
		}
		return nil
	}, false)
	f.props.AddAllowedValue(KeywordState, "0")
	f.props.AddAllowedValue(KeywordState, "1")
	return f
}

func (f *fakeShutter) DeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "Fake", Description: "fake shutter", Type: ShutterDevice}
}

func (f *fakeShutter) Properties() *Properties { return f.props }

func (f *fakeShutter) Initialize() error {
	f.initialized = true
	return nil
}

func (f *fakeShutter) Shutdown() error {
	if f.shutdownErr != nil {
		return f.shutdownErr
	}
	f.initialized = false
	return nil
}

func (f *fakeShutter) Close() error {
	f.closed = true
	return nil
}

func (f *fakeShutter) Busy() bool { return false }

func (f *fakeShutter) SetOpen(open bool) error {
	v := "0"
	if open {
		v = "1"
	}
	return f.props.Set(KeywordState, v)
}

func (f *fakeShutter) GetOpen() (bool, error) {
	if !f.initialized {
		return false, ErrUnknownPosition
	}
	return f.open, nil
}

func (f *fakeShutter) Fire(deltaT float64) error { return ErrUnsupportedCommand }

func (f *fakeShutter) HandleSetup(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("fake setup"))
}
