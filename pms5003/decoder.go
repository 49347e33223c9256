package pms5003

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetryDelay is how long the decoder waits after the source came
// back empty.
const DefaultRetryDelay = 100 * time.Millisecond

// ErrSourceFailure is returned when the byte source fails. The decoder
// never retries past it: reopen the serial port and start over.
var ErrSourceFailure = errors.New("sensor communication lost")

// ByteSource is anything the decoder can pull sensor bytes from, usually
// a serial port.
//
// Short reads are fine. A read returning (0, nil) means no data is
// available right now; any error, io.EOF included, is a hard failure.
type ByteSource interface {
	Read(p []byte) (n int, err error)
}

type DecoderOption func(*Decoder)

// WithLogger sets where diagnostics go.
func WithLogger(l zerolog.Logger) DecoderOption {
	return func(d *Decoder) {
		d.log = l
	}
}

// WithRetryDelay sets the pause after an empty read.
func WithRetryDelay(delay time.Duration) DecoderOption {
	return func(d *Decoder) {
		d.retryDelay = delay
	}
}

// WithoutChecksum makes the decoder return frames whose checksum does not
// match. Debugging only, every such frame is logged.
func WithoutChecksum() DecoderOption {
	return func(d *Decoder) {
		d.skipChecksum = true
	}
}

// Decoder turns a stream of sensor bytes into verified frames.
//
// A Decoder must not be used from more than one goroutine at a time.
type Decoder struct {
	src          ByteSource
	buf          [FrameSize]byte
	log          zerolog.Logger
	retryDelay   time.Duration
	skipChecksum bool
}

func NewDecoder(src ByteSource, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		src:        src,
		log:        zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel),
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Read blocks until the next valid frame arrives and returns its
// concentrations.
func (d *Decoder) Read() (Reading, error) {
	return d.ReadContext(context.Background())
}

// ReadContext is Read with cancellation. The context is checked between
// reads from the source, a read already blocked in the source is not
// interrupted.
func (d *Decoder) ReadContext(ctx context.Context) (Reading, error) {
	f, err := d.ReadFrame(ctx)
	if err != nil {
		return Reading{}, err
	}
	return f.Reading(), nil
}

// ReadFrame blocks until the next valid frame arrives and returns all of
// its fields. Corrupt frames are logged and skipped.
func (d *Decoder) ReadFrame(ctx context.Context) (*Frame, error) {
	for {
		found, err := d.awaitMagic(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		if err := d.assemble(ctx); err != nil {
			return nil, err
		}
		d.log.Debug().Hex("frame", d.buf[:]).Msg("frame assembled")

		got, want, ok := verify(d.buf[:])
		if !ok {
			if !d.skipChecksum {
				d.log.Warn().Uint16("got", got).Uint16("want", want).Msg("checksum mismatch, discarding frame")
				continue
			}
			d.log.Warn().Uint16("got", got).Uint16("want", want).Msg("checksum mismatch ignored")
		}
		return decode(d.buf[:]), nil
	}
}

// awaitMagic scans for the start bytes. It reports false when the source
// ran dry, in which case scanning has to start over.
func (d *Decoder) awaitMagic(ctx context.Context) (bool, error) {
	d.log.Debug().Msg("awaiting magic")

	var b1 byte
	seen := false
	for {
		b2, ok, err := d.pop(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if seen && b1 == magic1 && b2 == magic2 {
			d.buf[0], d.buf[1] = magic1, magic2
			return true, nil
		}
		// b2 may itself be the first start byte
		b1, seen = b2, true
	}
}

// assemble fills the rest of the frame after the start bytes.
func (d *Decoder) assemble(ctx context.Context) error {
	n := 2
	for n < FrameSize {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		m, err := d.src.Read(d.buf[n:])
		if err != nil {
			d.log.Error().Err(err).Int("have", n).Msg("read failed while assembling frame")
			return fmt.Errorf("%w: %w", ErrSourceFailure, err)
		}
		n += m
		if m == 0 {
			if err := d.pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// pop reads a single byte. ok is false when nothing was available, the
// retry delay has then already been waited out.
func (d *Decoder) pop(ctx context.Context) (b byte, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, canceled(err)
	}
	var one [1]byte
	n, err := d.src.Read(one[:])
	if err != nil {
		d.log.Error().Err(err).Msg("read failed while awaiting magic")
		return 0, false, fmt.Errorf("%w: %w", ErrSourceFailure, err)
	}
	if n == 0 {
		return 0, false, d.pause(ctx)
	}
	return one[0], true, nil
}

func (d *Decoder) pause(ctx context.Context) error {
	if d.retryDelay <= 0 {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		return nil
	}
	t := time.NewTimer(d.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return canceled(ctx.Err())
	}
}

func canceled(err error) error {
	return fmt.Errorf("pms5003: read canceled: %w", err)
}
