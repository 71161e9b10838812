// Package handshake implements the TCP phase of a run: a client proves it
// knows the shared init flag and tells the judge where its UDP socket lives.
//
// Clients are served one at a time. A client that sends a wrong flag or an
// unparsable endpoint is disconnected and the listener goes back to
// accepting; only a failure of the listener itself ends the phase.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Errors a rejected attempt reports
var (
	ErrBadFlag     = errors.New("handshake: invalid flag")
	ErrBadEndpoint = errors.New("handshake: invalid UDP address")
)

// Config defines handshake configuration
type Config struct {
	InitFlag uint64
	Logger   *zap.Logger

	// Observer is called once per finished attempt, accepted or rejected
	Observer func(Attempt)
}

// Attempt describes one finished client session
type Attempt struct {
	Remote   string
	State    State
	Endpoint string
	Err      error
}

// Listener accepts clients until one completes the handshake
type Listener struct {
	ln       net.Listener
	flag     string
	logger   *zap.Logger
	observer func(Attempt)

	closeOnce sync.Once
	closeErr  error
}

// Listen binds the TCP address
func Listen(addr string, conf Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("handshake: listen %s: %w", addr, err)
	}
	return NewListener(ln, conf), nil
}

// NewListener serves the handshake on an already bound listener
func NewListener(ln net.Listener, conf Config) *Listener {
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		ln:       ln,
		flag:     strconv.FormatUint(conf.InitFlag, 10),
		logger:   logger,
		observer: conf.Observer,
	}
}

// Addr returns the bound address
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the listener, it is safe to call more than once
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ln.Close()
	})
	return l.closeErr
}

// Accept serves clients sequentially until one of them sends the init flag
// followed by a valid endpoint, then closes the listener and returns that
// endpoint. Cancelling ctx closes the listener and unblocks any pending read.
func (l *Listener) Accept(ctx context.Context) (*net.UDPAddr, error) {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	l.logger.Info("Waiting for a client", zap.Stringer("addr", l.ln.Addr()))
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("handshake: accept: %w", err)
		}

		s := newSession(conn, l.logger.With(zap.Stringer("client", conn.RemoteAddr())))
		endpoint, err := s.serve(ctx, l.flag)
		l.observe(s, err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		l.logger.Info("Initialization complete, shutting down", zap.Stringer("endpoint", endpoint))
		l.Close()
		return net.UDPAddrFromAddrPort(endpoint), nil
	}
}

func (l *Listener) observe(s *session, err error) {
	if l.observer == nil {
		return
	}
	a := Attempt{
		Remote: s.conn.RemoteAddr().String(),
		State:  s.state,
		Err:    err,
	}
	if s.endpoint.IsValid() {
		a.Endpoint = s.endpoint.String()
	}
	l.observer(a)
}
