package pms5003

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// PortConfig describes the UART the sensor is attached to.
type PortConfig struct {
	Name     string
	BaudRate uint
	DataBits uint
	StopBits uint

	// MinimumReadSize and InterCharacterTimeout (in milliseconds, rounded
	// to 100ms by the driver) map to VMIN and VTIME on a tty.
	MinimumReadSize       uint
	InterCharacterTimeout uint
}

// readsTimeOut reports whether a read can come back empty on a healthy
// line. With VMIN above zero the tty blocks until the first byte, VTIME
// only starts counting after it.
func (cfg PortConfig) readsTimeOut() bool {
	return cfg.MinimumReadSize == 0
}

// DefaultPortConfig returns the manufacturer settings, 9600 baud 8N1.
func DefaultPortConfig(name string) PortConfig {
	return PortConfig{
		Name:                  name,
		BaudRate:              9600,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		InterCharacterTimeout: 4,
	}
}

// Port is a ByteSource reading from a serial device.
type Port struct {
	rw       io.ReadWriteCloser
	timeouts bool
}

func OpenPort(cfg PortConfig) (*Port, error) {
	if cfg.Name == "" {
		return nil, errors.New("pms5003: no serial port given")
	}
	rw, err := serial.Open(serial.OpenOptions{
		PortName:              cfg.Name,
		BaudRate:              cfg.BaudRate,
		DataBits:              cfg.DataBits,
		StopBits:              cfg.StopBits,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       cfg.MinimumReadSize,
		InterCharacterTimeout: cfg.InterCharacterTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Port{rw: rw, timeouts: cfg.readsTimeOut()}, nil
}

// Read reads from the port. An empty tty read shows up as io.EOF from the
// os package. When the port was opened with a read timeout that means no
// data yet and Read reports (0, nil). Otherwise the line hung up and
// io.EOF is passed on.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.rw.Read(b)
	if p.timeouts && n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

// Flush discards data received but not read and data written but not
// transmitted.
func (p *Port) Flush() error {
	return flush(p.rw)
}

func (p *Port) Close() error {
	return p.rw.Close()
}
