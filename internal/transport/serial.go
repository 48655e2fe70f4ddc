package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialConfig holds connection settings for a serial channel.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration // per read
}

// Serial is a Channel backed by a local serial port.
type Serial struct {
	cfg  SerialConfig
	port serial.Port
}

// NewSerial creates a serial channel. The port is opened by Open.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Serial{cfg: cfg}
}

func (s *Serial) Open() error {
	if s.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", s.cfg.Port, err)
	}
	if err := port.SetReadTimeout(s.cfg.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("serial: set timeout: %w", err)
	}
	// Drop anything left over from an earlier, aborted exchange.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return fmt.Errorf("serial: reset input: %w", err)
	}
	s.port = port
	return nil
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotConnected
	}
	return s.port.Write(p)
}

func (s *Serial) Read(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotConnected
	}
	return s.port.Read(p)
}

func (s *Serial) String() string { return s.cfg.Port }

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial: list ports: %w", err)
	}
	return ports, nil
}
