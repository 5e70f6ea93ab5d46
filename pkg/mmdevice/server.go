package mmdevice

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

type ServerDescription struct {
	Name                string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// deviceEntry is a loaded device. The mutex serializes every call the host
// makes into the device.
type deviceEntry struct {
	mu     sync.Mutex
	label  string
	number int
	dev    Device
}

func (e *deviceEntry) info() DeviceInfo {
	info := e.dev.DeviceInfo()
	info.TypeName = info.Type.String()
	info.Number = e.number
	info.Label = e.label
	return info
}

// Server hosts the loaded devices and exposes them over HTTP.
type Server struct {
	description ServerDescription
	module      *Module
	devices     []*deviceEntry
	listeners   []ChangeListener

	db   *Store
	tmpl *template.Template
}

func NewServer(description ServerDescription, module *Module, db *Store, tmpl *template.Template) *Server {
	return &Server{
		description: description,
		module:      module,
		db:          db,
		tmpl:        tmpl,
	}
}

// AddListener subscribes l to property changes of devices added afterwards.
func (s *Server) AddListener(l ChangeListener) {
	s.listeners = append(s.listeners, l)
}

// AddDevice creates a device of the named type and applies its pre-init
// properties. The device is not initialized.
func (s *Server) AddDevice(label, typeName string, preInit map[string]string) (Device, error) {
	for _, e := range s.devices {
		if e.label == label {
			return nil, fmt.Errorf("%w: device %s already loaded", ErrInvalidInputParam, label)
		}
	}

	dev, err := s.module.Create(typeName)
	if err != nil {
		return nil, err
	}

	props := dev.Properties()
	props.SetLabel(label)
	for _, l := range s.listeners {
		props.AddListener(l)
	}

	for _, name := range sortedKeys(preInit) {
		if err := props.Set(name, preInit[name]); err != nil {
			return nil, errors.Join(fmt.Errorf("device %s: pre-init %s: %w", label, name, err), s.module.Destroy(dev))
		}
	}

	number := 0
	for _, e := range s.devices {
		if e.dev.DeviceInfo().Type == dev.DeviceInfo().Type {
			number++
		}
	}

	s.devices = append(s.devices, &deviceEntry{label: label, number: number, dev: dev})
	log.Infof("Loaded device %s (%s) as %s %d", label, typeName, strings.ToLower(dev.DeviceInfo().Type.String()), number)
	return dev, nil
}

// LoadConfig adds, initializes and configures every device of cfg in order.
func (s *Server) LoadConfig(cfg *HardwareConfig) error {
	for _, dc := range cfg.Devices {
		dev, err := s.AddDevice(dc.Label, dc.Type, dc.PreInit)
		if err != nil {
			return err
		}
		if err := dev.Initialize(); err != nil {
			return fmt.Errorf("device %s: initialize: %w", dc.Label, err)
		}
		for _, name := range sortedKeys(dc.Properties) {
			if err := dev.Properties().Set(name, dc.Properties[name]); err != nil {
				return fmt.Errorf("device %s: property %s: %w", dc.Label, name, err)
			}
		}
	}
	return nil
}

// Device returns the loaded device with the given label.
func (s *Server) Device(label string) (Device, bool) {
	for _, e := range s.devices {
		if e.label == label {
			return e.dev, true
		}
	}
	return nil, false
}

// Close destroys every loaded device in reverse load order.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.devices) - 1; i >= 0; i-- {
		e := s.devices[i]
		e.mu.Lock()
		if err := s.module.Destroy(e.dev); err != nil {
			log.Errorf("Error unloading %s: %v", e.label, err)
			errs = append(errs, err)
		}
		e.mu.Unlock()
	}
	s.devices = nil
	return errors.Join(errs...)
}

// AddRoutes builds the HTTP routes. extra handlers, such as metrics, are
// mounted as given.
func (s *Server) AddRoutes(extra map[string]http.Handler) *http.ServeMux {
	r := http.NewServeMux()

	r.Handle("GET /management/apiversions", handle(s.handleAPIVersions))
	r.Handle("GET /management/v1/description", handle(s.handleDescription))
	r.Handle("GET /management/v1/devicetypes", handle(s.handleDeviceTypes))
	r.Handle("GET /management/v1/configureddevices", handle(s.handleConfiguredDevices))
	r.HandleFunc("/setup", s.handleSetup)

	for pattern, h := range extra {
		r.Handle(pattern, h)
	}

	for _, e := range s.devices {
		mux := http.NewServeMux()
		registerDeviceRoutes(mux, e)

		if sh, ok := e.dev.(Shutter); ok {
			log.Debugf("Adding shutter routes for %s", e.label)
			registerShutterRoutes(mux, e, sh)
		}

		devType := strings.ToLower(e.dev.DeviceInfo().Type.String())

		apiPrefix := fmt.Sprintf("/api/v1/%s/%d", devType, e.number)
		r.Handle(apiPrefix+"/", http.StripPrefix(apiPrefix, mux))

		// Only the setup form lives under the setup prefix
		if sh, ok := e.dev.(SetupHandler); ok {
			setupPath := fmt.Sprintf("/setup/v1/%s/%d/setup", devType, e.number)
			r.HandleFunc(setupPath, func(w http.ResponseWriter, r *http.Request) {
				e.mu.Lock()
				defer e.mu.Unlock()
				sh.HandleSetup(w, r)
			})
		}
	}

	return r
}

func (s *Server) handleAPIVersions(r *http.Request) (any, error) {
	return []int{1}, nil
}

func (s *Server) handleDescription(r *http.Request) (any, error) {
	return s.description, nil
}

func (s *Server) handleDeviceTypes(r *http.Request) (any, error) {
	return s.module.DeviceTypes(), nil
}

func (s *Server) handleConfiguredDevices(r *http.Request) (any, error) {
	deviceInfo := make([]DeviceInfo, 0, len(s.devices))
	for _, e := range s.devices {
		deviceInfo = append(deviceInfo, e.info())
	}
	return deviceInfo, nil
}

// handleSetup returns a user interface for setting up the host.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "no configuration store", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.db.GetConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.renderSetupForm(w, cfg, false, "")

	case http.MethodPost:
		cfg, err := parseSetupForm(r)
		if err != nil {
			s.renderSetupForm(w, cfg, false, err.Error())
			return
		}

		log.Infof("Setting host config: mqtt enabled=%v host=%s:%d", cfg.MQTT.Enabled, cfg.MQTT.Host, cfg.MQTT.Port)
		if err := s.db.SetConfig(cfg); err != nil {
			s.renderSetupForm(w, cfg, false, err.Error())
			return
		}
		s.renderSetupForm(w, cfg, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderSetupForm(w http.ResponseWriter, cfg Config, success bool, err string) {
	data := struct {
		Config
		Success bool
		Error   string
	}{cfg, success, err}

	if err := s.tmpl.ExecuteTemplate(w, "setup.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseSetupForm(r *http.Request) (Config, error) {
	if err := r.ParseForm(); err != nil {
		return Config{}, fmt.Errorf("error parsing form: %v", err)
	}

	cfg := Config{
		MQTT: MQTTConfig{
			Enabled:   r.FormValue("mqtt-enabled") != "",
			Host:      strings.TrimSpace(r.FormValue("mqtt-host")),
			Username:  r.FormValue("mqtt-username"),
			Password:  r.FormValue("mqtt-password"),
			TopicRoot: strings.Trim(strings.TrimSpace(r.FormValue("mqtt-topic-root")), "/"),
		},
	}

	if v := r.FormValue("mqtt-port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid port: %v", err)
		}
		cfg.MQTT.Port = port
	}

	return cfg, cfg.validate()
}
