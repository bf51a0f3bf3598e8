package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is the loopback address the control plane connects to
	DefaultAddr = "127.0.0.1:5000"
	// DefaultProbe is the liveness sentinel answered without touching the device
	DefaultProbe = "PING"
	// DefaultReadBufferSize bounds a single command read
	DefaultReadBufferSize = 1024

	ReplyOK        = "OK\n"
	ReplyForwarded = "forwarded\n"
)

// BindError means the listener could not be established. It is fatal at
// startup.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("relay bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Config configures the relay listener
type Config struct {
	Addr           string
	ProbeToken     string
	ReadBufferSize int
}

// Observer is notified of relay activity; the bridge statistics implement it
type Observer interface {
	CommandForwarded()
	ProbeAnswered()
}

type nopObserver struct{}

func (nopObserver) CommandForwarded() {}
func (nopObserver) ProbeAnswered()    {}

// Relay accepts one control connection at a time and forwards every
// command it reads to the device, except the liveness probe which it
// answers itself
type Relay struct {
	cfg      Config
	device   io.Writer
	logger   *zap.Logger
	observer Observer

	ln net.Listener

	mu     sync.Mutex
	active net.Conn
	closed bool
}

// Option configures a Relay
type Option func(*Relay)

// WithObserver registers an activity observer
func WithObserver(o Observer) Option {
	return func(r *Relay) {
		r.observer = o
	}
}

// New creates a Relay that writes forwarded commands to device
func New(cfg Config, device io.Writer, logger *zap.Logger, opts ...Option) *Relay {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ProbeToken == "" {
		cfg.ProbeToken = DefaultProbe
	}
	if cfg.ReadBufferSize < 16 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}

	r := &Relay{
		cfg:      cfg,
		device:   device,
		logger:   logger.Named("relay"),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listen binds the TCP listener. Failures are returned as *BindError.
func (r *Relay) Listen() error {
	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return &BindError{Addr: r.cfg.Addr, Err: err}
	}
	r.ln = ln
	r.logger.Info("relay listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen
func (r *Relay) Addr() net.Addr {
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Connections are served sequentially; a new one is only accepted after the
// previous peer went away.
func (r *Relay) Serve(ctx context.Context) error {
	if r.ln == nil {
		return errors.New("relay: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = r.Close()
	})
	defer stop()

	var backoff time.Duration
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient accept failures such as EMFILE
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			r.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		r.setActive(conn)
		r.handle(ctx, conn)
		r.setActive(nil)
	}
}

// Close stops the listener and drops the active connection
func (r *Relay) Close() error {
	var err error
	if r.ln != nil {
		err = r.ln.Close()
	}
	r.mu.Lock()
	r.closed = true
	if r.active != nil {
		_ = r.active.Close()
	}
	r.mu.Unlock()
	return err
}

func (r *Relay) setActive(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Accept may race with Close
	if r.closed && conn != nil {
		_ = conn.Close()
	}
	r.active = conn
}

func (r *Relay) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	session := uuid.NewString()
	logger := r.logger.With(
		zap.String("session_id", session),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)
	logger.Info("control connection accepted")

	reader := bufio.NewReaderSize(conn, r.cfg.ReadBufferSize)
	var commands, probes int
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(chunk) > 0 {
			probe, herr := r.dispatch(conn, chunk)
			if herr != nil {
				logger.Warn("connection closed on error", zap.Error(herr))
				return
			}
			if probe {
				probes++
			} else {
				commands++
			}
		}

		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			logger.Info("control connection closed by peer",
				zap.Int("commands_forwarded", commands),
				zap.Int("probes_answered", probes),
			)
		case ctx.Err() != nil:
			logger.Info("control connection closed on shutdown")
		default:
			logger.Warn("control connection read failed", zap.Error(err))
		}
		return
	}
}

// dispatch answers the probe or forwards chunk verbatim to the device.
// It reports whether chunk was the probe.
func (r *Relay) dispatch(conn net.Conn, chunk []byte) (bool, error) {
	if string(bytes.TrimSpace(chunk)) == r.cfg.ProbeToken {
		if _, err := io.WriteString(conn, ReplyOK); err != nil {
			return true, fmt.Errorf("write probe reply: %w", err)
		}
		r.observer.ProbeAnswered()
		return true, nil
	}

	if _, err := r.device.Write(chunk); err != nil {
		return false, fmt.Errorf("forward %d bytes to device: %w", len(chunk), err)
	}
	r.observer.CommandForwarded()
	r.logger.Debug("command forwarded", zap.ByteString("payload", bytes.TrimSpace(chunk)))

	if _, err := io.WriteString(conn, ReplyForwarded); err != nil {
		return false, fmt.Errorf("write forward reply: %w", err)
	}
	return false, nil
}
