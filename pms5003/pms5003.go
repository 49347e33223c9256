// Based on code from Mark Hansen:
//   https://github.com/mhansen/breathe/blob/master/breathe.go
//
// Pimoroni's driver used as a reference also:
//  https://github.com/pimoroni/pms5003-python
//
// Package pms5003 reads air quality data from a Plantower PMS5003 sensor
// over its UART.
//
// PMS5003 datasheet: http://www.aqmd.gov/docs/default-source/aq-spec/resources-page/plantower-pms5003-manual_v2-3.pdf
package pms5003

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var ErrPinNotFound = errors.New("gpio pin not found")

type Device struct {
	pinEnable, pinReset gpio.PinIO
	serialPort          string
	port                *Port
	src                 ByteSource
	dec                 *Decoder
	skipChecksum        bool
	log                 zerolog.Logger
}

// New device with custom options.
//
// https://pinout.xyz/pinout/enviro_plus#
//
// resetPin: module reset signal pin
// enablePin: enable/disable the module
// serialPort: usually /dev/ttyAMA0 on a Raspberry PI
//
// Leave a pin name empty if it isn't wired.
func NewWithOpts(resetPin, enablePin, serialPort string) (*Device, error) {
	dev := newDevice()
	dev.serialPort = serialPort

	if resetPin == "" && enablePin == "" {
		return dev, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, err
	}

	if enablePin != "" {
		dev.pinEnable = gpioreg.ByName(enablePin)
		if dev.pinEnable == nil {
			return nil, fmt.Errorf("%w: %s", ErrPinNotFound, enablePin)
		}
		if err := dev.pinEnable.Out(gpio.High); err != nil {
			return nil, err
		}
	}

	if resetPin != "" {
		dev.pinReset = gpioreg.ByName(resetPin)
		if dev.pinReset == nil {
			return nil, fmt.Errorf("%w: %s", ErrPinNotFound, resetPin)
		}
		if err := dev.pinReset.Out(gpio.High); err != nil {
			return nil, err
		}
	}

	return dev, nil
}

// New device with sane default values for Enviro+ with PMS5003
// from Plantower.
func New() (*Device, error) {
	return NewWithOpts("GPIO27", "GPIO22", "/dev/ttyAMA0")
}

// NewWithSource reads from src instead of opening a serial port. No GPIO
// is touched.
func NewWithSource(src ByteSource) *Device {
	dev := newDevice()
	dev.src = src
	return dev
}

func newDevice() *Device {
	return &Device{
		log: zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel),
	}
}

func (dev *Device) EnableDebugging() {
	dev.SetLogger(dev.log.Level(zerolog.DebugLevel))
}

// SkipChecksum accepts frames with a bad checksum. Only useful to debug
// wiring problems.
func (dev *Device) SkipChecksum() {
	dev.skipChecksum = true
}

// SetLogger replaces the default stderr logger. An open session switches
// over right away.
func (dev *Device) SetLogger(l zerolog.Logger) {
	dev.log = l
	if dev.dec != nil {
		dev.dec.log = l
	}
}

// Start reading values from the serial port.
//
// Pass an optional callback to receive those values after reading
// them. StartReading only returns when the sensor can't be read from
// anymore.
func (dev *Device) StartReading(cb func(Reading)) error {
	return dev.StartReadingContext(context.Background(), cb)
}

// StartReadingContext is StartReading, stopping when ctx is done.
func (dev *Device) StartReadingContext(ctx context.Context, cb func(Reading)) error {
	if err := dev.open(); err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.reset(); err != nil {
		dev.log.Warn().Err(err).Msg("reset failed")
	}

	for {
		r, err := dev.dec.ReadContext(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceFailure) {
				dev.log.Error().Err(err).Msg("giving up on sensor")
			}
			return err
		}
		dev.log.Debug().
			Uint16("pm1", r.PM1).
			Uint16("pm25", r.PM25).
			Uint16("pm10", r.PM10).
			Msg("reading")
		// callback
		if cb != nil {
			cb(r)
		}
	}
}

// ReadOnce returns a single reading, opening the port first if needed.
// Call Close when done.
func (dev *Device) ReadOnce(ctx context.Context) (Reading, error) {
	if err := dev.open(); err != nil {
		return Reading{}, err
	}
	return dev.dec.ReadContext(ctx)
}

// Close releases the serial port, if the device opened one.
func (dev *Device) Close() error {
	dev.dec = nil
	if dev.port == nil {
		return nil
	}
	err := dev.port.Close()
	dev.port = nil
	dev.src = nil
	return err
}

func (dev *Device) open() error {
	if dev.dec != nil {
		return nil
	}

	if dev.src == nil {
		port, err := OpenPort(DefaultPortConfig(dev.serialPort))
		if err != nil {
			return err
		}
		if err := port.Flush(); err != nil {
			dev.log.Debug().Err(err).Msg("flush failed")
		}
		dev.port = port
		dev.src = port
	}

	opts := []DecoderOption{WithLogger(dev.log)}
	if dev.skipChecksum {
		opts = append(opts, WithoutChecksum())
	}
	dev.dec = NewDecoder(dev.src, opts...)
	return nil
}

// reset the PMS5003 module
func (dev *Device) reset() error {
	if dev.pinReset == nil {
		return nil
	}

	if err := dev.pinReset.Out(gpio.Low); err != nil {
		return err
	}

	if dev.port != nil {
		if err := dev.port.Flush(); err != nil {
			dev.log.Debug().Err(err).Msg("flush failed")
		}
	}
	time.Sleep(100 * time.Millisecond)

	if err := dev.pinReset.Out(gpio.High); err != nil {
		return err
	}

	return nil
}
