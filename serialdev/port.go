package serialdev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// ErrClosed is returned by Write after the port was closed
var ErrClosed = errors.New("serial port closed")

// Config describes how to open the device
type Config struct {
	Device   string
	BaudRate int
	// SettleDelay is how long to wait after opening before the first
	// write; Arduino-class boards reset when the port opens
	SettleDelay time.Duration
}

// Port is the single shared serial handle. The ingestion loop is its only
// reader and the command relay its only writer. Writes are serialised by a
// mutex that reads never take, so a blocked read cannot stall a command.
type Port struct {
	name string
	rw   io.ReadWriteCloser

	wmu    sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens the device at 8N1 and waits for the settle delay.
// Cancelling ctx during the delay closes the port and returns ctx.Err().
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	sp, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial device %s: %w", cfg.Device, err)
	}

	logger.Info("serial port opened",
		zap.String("device", cfg.Device),
		zap.Int("baud_rate", cfg.BaudRate),
		zap.Duration("settle_delay", cfg.SettleDelay),
	)

	if cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			sp.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.SettleDelay):
		}
	}

	return NewPort(cfg.Device, sp), nil
}

// NewPort wraps an already open stream
func NewPort(name string, rw io.ReadWriteCloser) *Port {
	return &Port{name: name, rw: rw}
}

// Name returns the device path
func (p *Port) Name() string {
	return p.name
}

// Read reads from the device. It has no timeout and returns an error once
// the port is closed.
func (p *Port) Read(b []byte) (int, error) {
	return p.rw.Read(b)
}

// Write writes b to the device in full. Concurrent writers never interleave.
func (p *Port) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}

	written := 0
	for written < len(b) {
		n, err := p.rw.Write(b[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Close closes the device. A blocked Read returns with an error.
// Calling Close more than once is safe.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		// Close first so a Write stuck on a full device buffer is released
		// before we wait for the write lock.
		p.closeErr = p.rw.Close()
		p.wmu.Lock()
		p.closed = true
		p.wmu.Unlock()
	})
	return p.closeErr
}
