package mmdevice

import (
	"fmt"
	"slices"
	"strconv"
)

// Standard property names.
const (
	KeywordName        = "Name"
	KeywordDescription = "Description"
	KeywordPort        = "Port"
	KeywordState       = "State"
	KeywordDelay       = "Delay"
)

type PropertyType int

const (
	String PropertyType = iota
	Integer
	Float
)

func (t PropertyType) String() string {
	switch t {
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	default:
		return "String"
	}
}

// ActionType tells a property action why it is being invoked.
type ActionType int

const (
	BeforeGet ActionType = iota
	AfterSet
)

// Action synchronizes a property with the device internal state.
type Action func(p *Property, act ActionType) error

// Property is a named, typed value exposed to the host.
type Property struct {
	name     string
	typ      PropertyType
	value    string
	readOnly bool
	preInit  bool
	allowed  []string
	limits   *[2]float64
	action   Action
}

func (p *Property) Name() string       { return p.name }
func (p *Property) Type() PropertyType { return p.typ }
func (p *Property) Value() string      { return p.value }

// Set stores a raw value without validation. Actions use it to publish
// cached state during BeforeGet or to revert during AfterSet.
func (p *Property) Set(value string) { p.value = value }

func (p *Property) SetInt(v int64) { p.value = strconv.FormatInt(v, 10) }

func (p *Property) SetFloat(v float64) { p.value = strconv.FormatFloat(v, 'f', -1, 64) }

func (p *Property) Int() (int64, error) {
	v, err := strconv.ParseInt(p.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPropertyValue, p.name, p.value)
	}
	return v, nil
}

func (p *Property) Float() (float64, error) {
	v, err := strconv.ParseFloat(p.value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPropertyValue, p.name, p.value)
	}
	return v, nil
}

// validate checks value against the type, the allowed values and the limits.
func (p *Property) validate(value string) error {
	var num float64
	switch p.typ {
	case Integer:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects an integer, got %q", ErrInvalidPropertyValue, p.name, value)
		}
		num = float64(v)
	case Float:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidPropertyValue, p.name, value)
		}
		num = v
	}

	if len(p.allowed) > 0 && !slices.Contains(p.allowed, value) {
		return fmt.Errorf("%w: %s does not allow %q", ErrInvalidPropertyValue, p.name, value)
	}

	if p.limits != nil && (num < p.limits[0] || num > p.limits[1]) {
		return fmt.Errorf("%w: %s=%s outside [%g, %g]", ErrInvalidPropertyValue, p.name, value, p.limits[0], p.limits[1])
	}
	return nil
}

// PropertyInfo describes a property for the host API.
type PropertyInfo struct {
	Name     string   `json:"Name"`
	Type     string   `json:"Type"`
	Value    string   `json:"Value"`
	ReadOnly bool     `json:"ReadOnly"`
	PreInit  bool     `json:"PreInit"`
	Allowed  []string `json:"AllowedValues,omitempty"`
	Lower    *float64 `json:"LowerLimit,omitempty"`
	Upper    *float64 `json:"UpperLimit,omitempty"`
}

// ChangeListener is notified after a property value is committed.
type ChangeListener interface {
	OnPropertyChanged(device, name, value string)
}

// Properties is the property registry of a single device.
type Properties struct {
	device    string
	props     map[string]*Property
	order     []string
	listeners []ChangeListener
}

func NewProperties(device string) *Properties {
	return &Properties{
		device: device,
		props:  make(map[string]*Property),
	}
}

// SetLabel changes the device label used in change notifications.
func (ps *Properties) SetLabel(device string) { ps.device = device }

func (ps *Properties) AddListener(l ChangeListener) {
	ps.listeners = append(ps.listeners, l)
}

// Create registers a property. preInit only marks the property for the host
// as one to set before Initialize; the registry does not lock it afterwards.
// Rejecting late changes is the job of the property action.
func (ps *Properties) Create(name, value string, typ PropertyType, readOnly bool, action Action, preInit bool) error {
	if _, ok := ps.props[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProperty, name)
	}
	ps.props[name] = &Property{
		name:     name,
		typ:      typ,
		value:    value,
		readOnly: readOnly,
		preInit:  preInit,
		action:   action,
	}
	ps.order = append(ps.order, name)
	return nil
}

func (ps *Properties) Has(name string) bool {
	_, ok := ps.props[name]
	return ok
}

func (ps *Properties) Names() []string {
	return slices.Clone(ps.order)
}

func (ps *Properties) lookup(name string) (*Property, error) {
	p, ok := ps.props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProperty, name)
	}
	return p, nil
}

func (ps *Properties) AddAllowedValue(name, value string) error {
	p, err := ps.lookup(name)
	if err != nil {
		return err
	}
	if !slices.Contains(p.allowed, value) {
		p.allowed = append(p.allowed, value)
	}
	return nil
}

func (ps *Properties) SetLimits(name string, lower, upper float64) error {
	p, err := ps.lookup(name)
	if err != nil {
		return err
	}
	if p.typ == String || lower > upper {
		return fmt.Errorf("%w: %s", ErrInvalidPropertyLimits, name)
	}
	p.limits = &[2]float64{lower, upper}
	return nil
}

// Get refreshes the property through its action and returns the value.
func (ps *Properties) Get(name string) (string, error) {
	p, err := ps.lookup(name)
	if err != nil {
		return "", err
	}
	if p.action != nil {
		if err := p.action(p, BeforeGet); err != nil {
			return "", err
		}
	}
	return p.value, nil
}

// Set validates and stores value, then runs the AfterSet action. When the
// action fails the previous value is restored.
func (ps *Properties) Set(name, value string) error {
	p, err := ps.lookup(name)
	if err != nil {
		return err
	}
	if p.readOnly {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidProperty, name)
	}
	if err := p.validate(value); err != nil {
		return err
	}

	old := p.value
	p.value = value
	if p.action != nil {
		if err := p.action(p, AfterSet); err != nil {
			p.value = old
			return err
		}
	}

	for _, l := range ps.listeners {
		l.OnPropertyChanged(ps.device, name, p.value)
	}
	return nil
}

// Refresh runs the BeforeGet action of every property.
func (ps *Properties) Refresh() error {
	for _, name := range ps.order {
		if _, err := ps.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current descriptors in creation order. Values are
// the cached ones; no action is invoked.
func (ps *Properties) Snapshot() []PropertyInfo {
	infos := make([]PropertyInfo, 0, len(ps.order))
	for _, name := range ps.order {
		p := ps.props[name]
		info := PropertyInfo{
			Name:     p.name,
			Type:     p.typ.String(),
			Value:    p.value,
			ReadOnly: p.readOnly,
			PreInit:  p.preInit,
			Allowed:  slices.Clone(p.allowed),
		}
		if p.limits != nil {
			lo, hi := p.limits[0], p.limits[1]
			info.Lower, info.Upper = &lo, &hi
		}
		infos = append(infos, info)
	}
	return infos
}
