package mmdevice

import (
	"net/http"
)

// locked runs fn while holding the device mutex.
func locked(e *deviceEntry, fn handlerFunc) http.Handler {
	return handle(func(r *http.Request) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return fn(r)
	})
}

func registerDeviceRoutes(mux *http.ServeMux, e *deviceEntry) {
	dev := e.dev

	mux.Handle("GET /name", locked(e, func(r *http.Request) (any, error) {
		return dev.DeviceInfo().Name, nil
	}))
	mux.Handle("GET /description", locked(e, func(r *http.Request) (any, error) {
		return dev.DeviceInfo().Description, nil
	}))
	mux.Handle("GET /busy", locked(e, func(r *http.Request) (any, error) {
		return dev.Busy(), nil
	}))
	mux.Handle("GET /properties", locked(e, func(r *http.Request) (any, error) {
		return dev.Properties().Snapshot(), nil
	}))

	mux.Handle("GET /property", locked(e, func(r *http.Request) (any, error) {
		name, err := parseRequest(r, "Name")
		if err != nil {
			return nil, err
		}
		return dev.Properties().Get(name)
	}))
	mux.Handle("PUT /property", locked(e, func(r *http.Request) (any, error) {
		name, err := parseRequest(r, "Name")
		if err != nil {
			return nil, err
		}
		value, err := parseRequest(r, "Value")
		if err != nil {
			return nil, err
		}
		return nil, dev.Properties().Set(name, value)
	}))

	mux.Handle("PUT /initialize", locked(e, func(r *http.Request) (any, error) {
		return nil, dev.Initialize()
	}))
	mux.Handle("PUT /shutdown", locked(e, func(r *http.Request) (any, error) {
		return nil, dev.Shutdown()
	}))
}

func registerShutterRoutes(mux *http.ServeMux, e *deviceEntry, sh Shutter) {
	mux.Handle("GET /open", locked(e, func(r *http.Request) (any, error) {
		return sh.GetOpen()
	}))
	mux.Handle("PUT /open", locked(e, func(r *http.Request) (any, error) {
		open, err := parseBoolRequest(r, "Open")
		if err != nil {
			return nil, err
		}
		return nil, sh.SetOpen(open)
	}))
	mux.Handle("PUT /fire", locked(e, func(r *http.Request) (any, error) {
		deltaT, err := parseFloatRequest(r, "DeltaT")
		if err != nil {
			return nil, err
		}
		return nil, sh.Fire(deltaT)
	}))
}
