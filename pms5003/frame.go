package pms5003

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	magic1 = 0x42 // :)
	magic2 = 0x4d

	// FrameSize is the length of a complete PMS5003 packet, start bytes and
	// checksum included.
	FrameSize = 32

	// checksummed bytes: everything but the trailing checksum word
	sumSize = FrameSize - 2

	// PayloadLength is what a PMS5003 announces in the length word.
	PayloadLength = 28
)

var (
	ErrShortFrame = errors.New("short frame")
	ErrBadMagic   = errors.New("bad start bytes")
	ErrChecksum   = errors.New("checksum mismatch")
)

// Frame wraps an air quality packet, as documented in https://cdn-shop.adafruit.com/product-files/3686/plantower-pms5003-manual_v2-3.pdf
//
// Std values are CF=1 standard particle concentrations, Env values are
// corrected for atmospheric environment. Particle counts are per 0.1L of air.
type Frame struct {
	Length         uint16
	Pm10Std        uint16
	Pm25Std        uint16
	Pm100Std       uint16
	Pm10Env        uint16
	Pm25Env        uint16
	Pm100Env       uint16
	Particles3um   uint16
	Particles5um   uint16
	Particles10um  uint16
	Particles25um  uint16
	Particles50um  uint16
	Particles100um uint16
	Reserved       uint16
	Checksum       uint16
}

// Reading holds the PM1.0, PM2.5 and PM10 concentrations in µg/m³.
type Reading struct {
	PM1  uint16
	PM25 uint16
	PM10 uint16
}

func (r Reading) String() string {
	return fmt.Sprintf("=========================\n"+
		"PM1.0: %d µg/m³\n"+
		"PM2.5: %d µg/m³\n"+
		"PM10:  %d µg/m³\n"+
		"=========================", r.PM1, r.PM25, r.PM10)
}

// Reading returns the atmospheric environment concentrations, bytes 10
// to 15 of the raw packet.
func (f *Frame) Reading() Reading {
	return Reading{
		PM1:  f.Pm10Env,
		PM25: f.Pm25Env,
		PM10: f.Pm100Env,
	}
}

// Checksum adds up every byte in b, wrapping at 16 bits.
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}

// verify compares the sum of the first 30 bytes with the trailing
// checksum word. buf must hold a full frame.
func verify(buf []byte) (got, want uint16, ok bool) {
	got = Checksum(buf[:sumSize])
	want = binary.BigEndian.Uint16(buf[sumSize:FrameSize])
	return got, want, got == want
}

// decode unpacks everything after the start bytes. No validation.
func decode(buf []byte) *Frame {
	var f Frame
	// buf is always FrameSize long here and Frame is all fixed size
	// fields, binary.Read has nothing to fail on.
	_ = binary.Read(bytes.NewReader(buf[2:FrameSize]), binary.BigEndian, &f)
	return &f
}

// ParseFrame decodes a complete 32 byte packet, rejecting it if the start
// bytes or the checksum don't match.
func ParseFrame(buf []byte) (*Frame, error) {
	if len(buf) < FrameSize {
		return nil, fmt.Errorf("%w: want %d bytes got %d", ErrShortFrame, FrameSize, len(buf))
	}
	if buf[0] != magic1 || buf[1] != magic2 {
		return nil, fmt.Errorf("%w: %#02x %#02x", ErrBadMagic, buf[0], buf[1])
	}
	if got, want, ok := verify(buf); !ok {
		return nil, fmt.Errorf("%w: got %#04x want %#04x", ErrChecksum, got, want)
	}
	return decode(buf), nil
}
