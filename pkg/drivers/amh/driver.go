package amh

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"mmshutter/pkg/metrics"
	"mmshutter/pkg/mmdevice"
	"mmshutter/pkg/serial"
)

const (
	DeviceName        = "AndorAMH"
	DeviceDescription = "Andor AMH200-FOS shutter"
	DefaultPort       = "Andor-AMH200-FOS"

	keywordIntensity = "Intensity"
	minIntensity     = 1
	maxIntensity     = 100

	// Largest delay in ms that fits a time.Duration.
	maxDelayMs = float64(math.MaxInt64 / int64(time.Millisecond))
)

// ShutterState is the logical state of the light path.
type ShutterState int

const (
	StateClosed ShutterState = iota
	StateOpen
	// StateUnknown means a command was sent but its outcome was not confirmed.
	StateUnknown
)

func (s ShutterState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateFor(open bool) ShutterState {
	if open {
		return StateOpen
	}
	return StateClosed
}

// OpenFunc opens the serial transport for the named port.
type OpenFunc func(name string, cfg serial.Config) (serial.Transport, error)

func openSerial(name string, cfg serial.Config) (serial.Transport, error) {
	p, err := serial.Open(name, cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type Options struct {
	DB        *bolt.DB           // Settings store, defaults are used when nil
	Templates *template.Template // Setup form templates
	Logger    log.FieldLogger
	Open      OpenFunc         // Defaults to the system serial port
	Now       func() time.Time // Defaults to time.Now
}

// Driver controls an Andor AMH200-FOS light source as a shutter. Calls are
// expected to be serialized by the host.
type Driver struct {
	logger log.FieldLogger
	tmpl   *template.Template
	store  *store
	open   OpenFunc
	now    func() time.Time
	props  *mmdevice.Properties

	settings     Settings
	port         serial.Transport
	portName     string
	initialized  bool
	propsCreated bool

	intensity   int
	state       ShutterState
	delay       time.Duration
	changedTime time.Time
}

var _ mmdevice.Shutter = (*Driver)(nil)

func NewDriver(opts Options) (*Driver, error) {
	d := Driver{
		logger:    opts.Logger,
		tmpl:      opts.Templates,
		open:      opts.Open,
		now:       opts.Now,
		props:     mmdevice.NewProperties(DeviceName),
		settings:  defaultSettings,
		portName:  DefaultPort,
		intensity: minIntensity,
		state:     StateClosed,
	}
	if d.logger == nil {
		d.logger = log.WithField("device", DeviceName)
	}
	if d.open == nil {
		d.open = openSerial
	}
	if d.now == nil {
		d.now = time.Now
	}
	if opts.DB != nil {
		st, err := NewStore(opts.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %v", err)
		}
		d.store = st
	}

	// Pre-initialization properties
	if err := d.props.Create(mmdevice.KeywordName, DeviceName, mmdevice.String, true, nil, false); err != nil {
		return nil, err
	}
	if err := d.props.Create(mmdevice.KeywordDescription, DeviceDescription, mmdevice.String, true, nil, false); err != nil {
		return nil, err
	}
	if err := d.props.Create(mmdevice.KeywordPort, DefaultPort, mmdevice.String, false, d.onPort, true); err != nil {
		return nil, err
	}

	return &d, nil
}

func (d *Driver) DeviceInfo() mmdevice.DeviceInfo {
	return mmdevice.DeviceInfo{
		Name:        DeviceName,
		Description: DeviceDescription,
		Type:        mmdevice.ShutterDevice,
		TypeName:    mmdevice.ShutterDevice.String(),
	}
}

func (d *Driver) Properties() *mmdevice.Properties { return d.props }

// State returns the committed logical state.
func (d *Driver) State() ShutterState { return d.state }

func (d *Driver) Initialized() bool { return d.initialized }

func (d *Driver) Initialize() error {
	if d.initialized {
		return nil
	}

	if d.store != nil {
		settings, err := d.store.GetSettings()
		if err != nil {
			return fmt.Errorf("failed to get settings: %v", err)
		}
		d.settings = settings
	}

	port, err := d.open(d.portName, serial.Config{
		BaudRate:    d.settings.BaudRate,
		ReadTimeout: d.settings.readTimeout(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnspecifiedError, err)
	}
	d.port = port

	if err := d.createProperties(); err != nil {
		d.closePort()
		return err
	}

	d.intensity = maxIntensity
	if err := d.props.Refresh(); err != nil {
		d.closePort()
		return err
	}

	// Bring the device in line with the internal state
	if err := d.props.Set(mmdevice.KeywordState, boolString(d.state == StateOpen)); err != nil {
		d.logger.Warnf("Failed to apply initial shutter state: %v", err)
	}

	d.changedTime = d.now()
	d.initialized = true
	d.logger.Infof("%s initialized on port %s", DeviceName, d.portName)

	return nil
}

func (d *Driver) createProperties() error {
	if d.propsCreated {
		return nil
	}

	if err := d.props.Create(mmdevice.KeywordState, "0", mmdevice.Integer, false, d.onState, false); err != nil {
		return err
	}
	d.props.AddAllowedValue(mmdevice.KeywordState, "0")
	d.props.AddAllowedValue(mmdevice.KeywordState, "1")

	if err := d.props.Create(mmdevice.KeywordDelay, "0.0", mmdevice.Float, false, d.onDelay, false); err != nil {
		return err
	}

	if err := d.props.Create(keywordIntensity, "100", mmdevice.Integer, false, d.onIntensity, false); err != nil {
		return err
	}
	// No access to the off level through the intensity
	if err := d.props.SetLimits(keywordIntensity, minIntensity, maxIntensity); err != nil {
		return err
	}

	d.propsCreated = true
	return nil
}

// Shutdown closes the shutter and releases the port. When the close command
// fails the device stays initialized so Shutdown can be retried.
func (d *Driver) Shutdown() error {
	if !d.initialized {
		return nil
	}

	if err := d.SetShutterPosition(context.Background(), false); err != nil {
		return err
	}
	d.closePort()
	d.initialized = false
	d.logger.Infof("%s shut down", DeviceName)

	return nil
}

// Close releases the port without touching the shutter.
func (d *Driver) Close() error {
	d.closePort()
	d.initialized = false
	return nil
}

func (d *Driver) closePort() {
	if d.port == nil {
		return
	}
	if err := d.port.Close(); err != nil {
		d.logger.Warnf("Failed to close port %s: %v", d.portName, err)
	}
	d.port = nil
}

func (d *Driver) Busy() bool {
	return d.now().Sub(d.changedTime) < d.delay
}

func (d *Driver) SetOpen(open bool) error {
	return d.props.Set(mmdevice.KeywordState, boolString(open))
}

func (d *Driver) GetOpen() (bool, error) {
	if d.state == StateUnknown {
		return false, mmdevice.ErrUnknownPosition
	}
	value, err := d.props.Get(mmdevice.KeywordState)
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

func (d *Driver) Fire(deltaT float64) error {
	return mmdevice.ErrUnsupportedCommand
}

// SetShutterPosition sends the light level for the requested position and
// waits for the device to answer. The busy timer restarts as soon as an
// answer or a read failure is obtained.
func (d *Driver) SetShutterPosition(ctx context.Context, open bool) error {
	if d.port == nil {
		return fmt.Errorf("%w: port %s is not open", ErrUnspecifiedError, d.portName)
	}

	// Clear anything left over from a previous exchange
	if err := d.port.Purge(); err != nil {
		metrics.IncError(metrics.ErrSerialPurge)
		return fmt.Errorf("%w: %w", mmdevice.ErrSerialCommandFailed, err)
	}

	level := 0
	if open {
		level = d.intensity
	}
	cmd := formatCommand(level)
	d.logger.Debugf("Sending command: %s", cmd)

	start := time.Now()
	if err := d.port.Send(cmd, terminator); err != nil {
		metrics.IncError(metrics.ErrSerialWrite)
		return fmt.Errorf("%w: %w", mmdevice.ErrSerialCommandFailed, err)
	}
	metrics.Commands.Inc()

	// Block until the device acknowledges or the read times out
	msg, err := d.port.ReadAnswer(ctx, terminator)
	d.changedTime = d.now()
	metrics.ExchangeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.IncError(metrics.ErrSerialRead)
		d.commit(StateUnknown)
		if errors.Is(err, serial.ErrTimeout) {
			return fmt.Errorf("%w: %w", mmdevice.ErrSerialTimeout, err)
		}
		return fmt.Errorf("%w: %w", mmdevice.ErrSerialCommandFailed, err)
	}
	d.logger.Debugf("Answer: %q", msg)

	resp := parseAnswer(msg)
	switch resp.kind {
	case answerOK:
		d.commit(stateFor(open))
		return nil

	case answerDeviceError:
		d.logger.Errorf("Error in received answer, giving code: %d", resp.errNo)
		metrics.IncDeviceError(resp.errNo)
		return DeviceError(resp.errNo)

	case answerBadErrorNumber:
		d.logger.Errorf("Error answer with an invalid code: %q", msg)
		metrics.IncError(metrics.ErrBadAnswer)
		return fmt.Errorf("%w: %q", ErrUnrecognizedAnswer, msg)

	default:
		if d.settings.StrictAnswers {
			metrics.IncError(metrics.ErrBadAnswer)
			d.commit(StateUnknown)
			return fmt.Errorf("%w: %q", ErrUnrecognizedAnswer, msg)
		}
		// Only an E answer is a failure in lenient mode
		d.logger.Debugf("Accepting unrecognised answer %q", msg)
		d.commit(stateFor(open))
		return nil
	}
}

// commit records the confirmed state. With optimistic state the flag has
// already been set from the request.
func (d *Driver) commit(s ShutterState) {
	if d.settings.OptimisticState {
		return
	}
	d.state = s
}

func (d *Driver) onState(p *mmdevice.Property, act mmdevice.ActionType) error {
	switch act {
	case mmdevice.BeforeGet:
		if d.state != StateUnknown {
			p.Set(boolString(d.state == StateOpen))
		}
	case mmdevice.AfterSet:
		pos, err := p.Int()
		if err != nil {
			return err
		}
		open := pos != 0
		if d.settings.OptimisticState {
			d.state = stateFor(open)
		}
		return d.SetShutterPosition(context.Background(), open)
	}
	return nil
}

func (d *Driver) onPort(p *mmdevice.Property, act mmdevice.ActionType) error {
	switch act {
	case mmdevice.BeforeGet:
		p.Set(d.portName)
	case mmdevice.AfterSet:
		if d.initialized {
			p.Set(d.portName)
			return ErrPortChangeForbidden
		}
		d.portName = p.Value()
	}
	return nil
}

func (d *Driver) onDelay(p *mmdevice.Property, act mmdevice.ActionType) error {
	switch act {
	case mmdevice.BeforeGet:
		p.SetFloat(float64(d.delay) / float64(time.Millisecond))
	case mmdevice.AfterSet:
		ms, err := p.Float()
		if err != nil {
			return err
		}
		if math.IsNaN(ms) || ms < 0 || ms > maxDelayMs {
			return fmt.Errorf("%w: delay must be within [0, %g] ms", mmdevice.ErrInvalidPropertyValue, maxDelayMs)
		}
		d.delay = time.Duration(ms * float64(time.Millisecond))
	}
	return nil
}

func (d *Driver) onIntensity(p *mmdevice.Property, act mmdevice.ActionType) error {
	switch act {
	case mmdevice.BeforeGet:
		p.SetInt(int64(d.intensity))
	case mmdevice.AfterSet:
		v, err := p.Int()
		if err != nil {
			return err
		}
		old := d.intensity
		d.intensity = int(v)
		if d.state != StateOpen {
			return nil
		}
		if err := d.SetShutterPosition(context.Background(), true); err != nil {
			if !d.settings.OptimisticState {
				d.intensity = old
			}
			return err
		}
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
