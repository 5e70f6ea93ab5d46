package amh

import (
	"fmt"
	"net/http"
	"strconv"

	"mmshutter/pkg/mmdevice"
)

// Register adds the AMH200-FOS shutter to the module's device types.
func Register(m *mmdevice.Module, opts Options) error {
	return m.Register(DeviceName, mmdevice.ShutterDevice, DeviceDescription, func() (mmdevice.Device, error) {
		return NewDriver(opts)
	})
}

func (d *Driver) HandleSetup(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, "settings store not configured", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := d.store.GetSettings()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		d.renderSetupForm(w, cfg, false, "")

	case http.MethodPost:
		cfg, err := parseSetupForm(r)
		if err == nil {
			err = d.store.SetSettings(cfg)
		}
		if err != nil {
			d.renderSetupForm(w, cfg, false, err.Error())
			return
		}

		// Settings are applied on the next Initialize
		d.logger.Infof("Setting AMH settings: %+v", cfg)
		d.renderSetupForm(w, cfg, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Driver) renderSetupForm(w http.ResponseWriter, cfg Settings, success bool, err string) {
	if d.tmpl == nil {
		http.Error(w, "setup form not available", http.StatusInternalServerError)
		return
	}

	data := struct {
		Settings
		Port        string
		Initialized bool
		Success     bool
		Error       string
	}{cfg, d.portName, d.initialized, success, err}

	if err := d.tmpl.ExecuteTemplate(w, "amh_setup.html", data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		d.logger.Errorf("Error rendering template: %v", err)
	}
}

func parseSetupForm(r *http.Request) (Settings, error) {
	if err := r.ParseForm(); err != nil {
		return Settings{}, fmt.Errorf("error parsing form: %v", err)
	}

	cfg := defaultSettings
	baud, err := strconv.Atoi(r.FormValue("baud-rate"))
	if err != nil {
		return cfg, fmt.Errorf("invalid baud-rate: %v", err)
	}
	timeout, err := strconv.ParseUint(r.FormValue("read-timeout"), 10, 32)
	if err != nil {
		return cfg, fmt.Errorf("invalid read-timeout: %v", err)
	}

	cfg.BaudRate = baud
	cfg.ReadTimeout = uint(timeout)
	cfg.StrictAnswers = r.FormValue("strict-answers") == "true"
	cfg.OptimisticState = r.FormValue("optimistic-state") == "true"

	return cfg, nil
}
