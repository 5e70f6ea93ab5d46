package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"

	"mmshutter/pkg/drivers/amh"
	"mmshutter/pkg/drivers/amhsim"
	"mmshutter/pkg/metrics"
	"mmshutter/pkg/mmdevice"
	"mmshutter/pkg/telemetry"
	"mmshutter/templates"
)

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func hardwareConfig(c *cli.Context) (*mmdevice.HardwareConfig, error) {
	if path := c.String("config"); path != "" {
		return mmdevice.LoadHardwareConfig(path)
	}

	return &mmdevice.HardwareConfig{
		Devices: []mmdevice.DeviceConfig{{
			Label:   amh.DeviceName,
			Type:    amh.DeviceName,
			PreInit: map[string]string{mmdevice.KeywordPort: c.String("serial-port")},
		}},
	}, nil
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("AMH200-FOS Shutter Server")

	tmpl, err := templates.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	db, err := bolt.Open(c.String("db"), 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := mmdevice.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	opts := amh.Options{
		DB:        db,
		Templates: tmpl,
		Logger:    log.WithField("device", "amh"),
	}
	if c.Bool("simulate") {
		log.Warn("Using the simulated AMH200-FOS")
		opts.Open = amhsim.New(log.WithField("device", "amhsim")).Open
	}

	module := mmdevice.NewModule()
	if err := amh.Register(module, opts); err != nil {
		return fmt.Errorf("failed to register device type: %v", err)
	}

	serverDesc := mmdevice.ServerDescription{
		Name:                "AMH200-FOS Shutter Server",
		Manufacturer:        "mmshutter",
		ManufacturerVersion: "1.0",
		Location:            c.String("location"),
	}
	server := mmdevice.NewServer(serverDesc, module, store, tmpl)
	defer server.Close()

	server.AddListener(metrics.PropertyListener{})

	cfg, err := store.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to read host config: %v", err)
	}
	if cfg.MQTT.Enabled {
		client, err := telemetry.Connect(cfg.MQTT, "amh-shutter")
		if err != nil {
			log.Errorf("MQTT telemetry disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			server.AddListener(telemetry.NewPublisher(client, cfg.MQTT.TopicRoot, log.WithField("component", "mqtt")))
		}
	}

	hw, err := hardwareConfig(c)
	if err != nil {
		return err
	}
	if err := server.LoadConfig(hw); err != nil {
		// Loaded devices stay reachable so they can be initialized later.
		log.Errorf("Failed to load hardware configuration: %v", err)
	}

	mux := server.AddRoutes(map[string]http.Handler{
		"GET /metrics": metrics.Handler(),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Int("port")),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Debugf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", srv.Addr, err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func main() {
	if err := loadDotEnv(".env"); err != nil {
		log.Fatalf("Error loading .env: %v", err)
	}

	app := cli.App{
		Name:  "amh-shutter",
		Usage: "Andor AMH200-FOS shutter server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   8090,
				EnvVars: []string{"SHUTTER_PORT"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path of the settings database",
				Value:   "mmshutter.db",
				EnvVars: []string{"SHUTTER_DB"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Hardware configuration file (YAML)",
				EnvVars: []string{"SHUTTER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "serial-port",
				Usage:   "Serial port of the default device when no configuration file is given",
				Value:   amh.DefaultPort,
				EnvVars: []string{"SHUTTER_SERIAL_PORT"},
			},
			&cli.BoolFlag{
				Name:    "simulate",
				Usage:   "Use the built-in AMH200-FOS simulator",
				EnvVars: []string{"SHUTTER_SIMULATE"},
			},
			&cli.StringFlag{
				Name:    "location",
				Usage:   "Location reported by the management API",
				EnvVars: []string{"SHUTTER_LOCATION"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
