// Package amhsim simulates the serial side of an Andor AMH200-FOS unit.
package amhsim

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"mmshutter/pkg/serial"
)

// Error numbers answered by the simulator.
const (
	ErrNoUnknownCommand = 1
	ErrNoLevelRange     = 2
)

const maxLevel = 100

// Simulator implements serial.Transport. Commands are answered following
// the device protocol unless an answer or a fault has been scripted.
type Simulator struct {
	mu     sync.Mutex
	logger log.FieldLogger

	level    int
	commands []string
	scripted []string
	pending  []string
	timeouts int
	purgeErr error
	sendErr  error
	opened   int
	closed   bool
}

var _ serial.Transport = (*Simulator)(nil)

func New(logger log.FieldLogger) *Simulator {
	if logger == nil {
		logger = log.WithField("component", "amhsim")
	}
	return &Simulator{logger: logger}
}

// Open returns the simulator as the transport for any port name.
func (s *Simulator) Open(name string, cfg serial.Config) (serial.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Simulated port %s opened at %d baud", name, cfg.BaudRate)
	s.opened++
	s.closed = false
	return s, nil
}

func (s *Simulator) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return serial.ErrClosed
	}
	if err := s.purgeErr; err != nil {
		s.purgeErr = nil
		return err
	}
	s.pending = nil
	return nil
}

func (s *Simulator) Send(cmd, term string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return serial.ErrClosed
	}
	if err := s.sendErr; err != nil {
		s.sendErr = nil
		return err
	}

	s.commands = append(s.commands, cmd)
	if len(s.scripted) > 0 {
		s.pending = append(s.pending, s.scripted[0])
		s.scripted = s.scripted[1:]
		return nil
	}
	s.pending = append(s.pending, s.handle(cmd))
	return nil
}

func (s *Simulator) ReadAnswer(ctx context.Context, term string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", serial.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.timeouts > 0 {
		s.timeouts--
		return "", fmt.Errorf("%w on simulated port", serial.ErrTimeout)
	}
	if len(s.pending) == 0 {
		return "", fmt.Errorf("%w on simulated port", serial.ErrTimeout)
	}

	answer := s.pending[0]
	s.pending = s.pending[1:]
	return answer, nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *Simulator) handle(cmd string) string {
	arg, ok := strings.CutPrefix(cmd, "LIGHT,")
	if !ok {
		return fmt.Sprintf("E,%d", ErrNoUnknownCommand)
	}
	level, err := strconv.Atoi(arg)
	if err != nil || level < 0 || level > maxLevel {
		return fmt.Sprintf("E,%d", ErrNoLevelRange)
	}

	s.level = level
	s.logger.Debugf("Light level set to %d", level)
	return "R"
}

// QueueAnswer makes the next command get answer verbatim instead of the
// protocol answer. The light level is left unchanged.
func (s *Simulator) QueueAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted = append(s.scripted, answer)
}

// TimeoutNext makes the next n reads time out.
func (s *Simulator) TimeoutNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = n
}

func (s *Simulator) FailNextPurge(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeErr = err
}

func (s *Simulator) FailNextSend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Level returns the light level last accepted.
func (s *Simulator) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Commands returns every command received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Simulator) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
