package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

var (
	ErrTimeout = errors.New("timeout waiting for answer")
	ErrClosed  = errors.New("serial port closed")
)

const (
	defaultBaudRate    = 9600
	defaultReadTimeout = 2 * time.Second

	// Reads are split in slices of this length so cancellation is noticed.
	pollInterval = 100 * time.Millisecond
)

// Transport is a line oriented command/answer channel to a device.
type Transport interface {
	// Purge discards any pending input and output.
	Purge() error
	// Send writes cmd followed by term.
	Send(cmd, term string) error
	// ReadAnswer blocks until term is read, the read timeout elapses or ctx
	// is done. The terminator is not part of the answer.
	ReadAnswer(ctx context.Context, term string) (string, error)
	Close() error
}

type Config struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// portHandle is the subset of serial.Port used by Port.
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// openPort is a hook for tests.
var openPort = func(name string, mode *serial.Mode) (portHandle, error) {
	return serial.Open(name, mode)
}

// Port is a Transport over a serial line.
type Port struct {
	name    string
	handle  portHandle
	timeout time.Duration
	pending []byte
	closed  bool
}

// Open opens the named port with 8N1 framing.
func Open(name string, cfg Config) (*Port, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	h, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	return &Port{
		name:    name,
		handle:  h,
		timeout: cfg.ReadTimeout,
	}, nil
}

func (p *Port) Name() string { return p.name }

func (p *Port) Purge() error {
	if p.closed {
		return ErrClosed
	}
	p.pending = p.pending[:0]
	if err := p.handle.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input buffer: %w", err)
	}
	if err := p.handle.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("reset output buffer: %w", err)
	}
	return nil
}

func (p *Port) Send(cmd, term string) error {
	if p.closed {
		return ErrClosed
	}
	buf := []byte(cmd + term)
	for len(buf) > 0 {
		n, err := p.handle.Write(buf)
		if err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
		buf = buf[n:]
	}
	return nil
}

func (p *Port) ReadAnswer(ctx context.Context, term string) (string, error) {
	if p.closed {
		return "", ErrClosed
	}
	if term == "" {
		return "", errors.New("empty answer terminator")
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := make([]byte, 64)
	for {
		if i := bytes.Index(p.pending, []byte(term)); i >= 0 {
			answer := string(p.pending[:i])
			p.pending = append(p.pending[:0], p.pending[i+len(term):]...)
			return answer, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("%w on %s after %v", ErrTimeout, p.name, p.timeout)
		}

		if err := p.handle.SetReadTimeout(min(remaining, pollInterval)); err != nil {
			return "", fmt.Errorf("set read timeout: %w", err)
		}
		n, err := p.handle.Read(buf)
		if n > 0 {
			p.pending = append(p.pending, buf[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", p.name, err)
		}
	}
}

func (p *Port) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.handle.Close()
}
