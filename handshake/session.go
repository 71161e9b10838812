package handshake

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is the position of a client session in the handshake
type State int

// Session states
const (
	AwaitingFlag State = iota + 1
	AwaitingEndpoint
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case AwaitingFlag:
		return "AwaitingFlag"
	case AwaitingEndpoint:
		return "AwaitingEndpoint"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// session lives for a single accepted connection
type session struct {
	conn     net.Conn
	reader   *bufio.Reader
	logger   *zap.Logger
	state    State
	endpoint netip.AddrPort
}

func newSession(conn net.Conn, logger *zap.Logger) *session {
	return &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		logger: logger,
		state:  AwaitingFlag,
	}
}

// serve runs the session to Accepted or Rejected and always closes the
// connection
func (s *session) serve(ctx context.Context, flag string) (netip.AddrPort, error) {
	stop := context.AfterFunc(ctx, func() { s.conn.SetDeadline(time.Now()) })
	defer stop()
	defer s.conn.Close()

	s.logger.Info("Client connected, waiting for flag")
	line, err := s.readLine()
	if err != nil {
		return s.reject(err)
	}
	if subtle.ConstantTimeCompare([]byte(line), []byte(flag)) != 1 {
		s.logger.Warn("Invalid flag", zap.String("flag", line))
		return s.reject(ErrBadFlag)
	}
	s.state = AwaitingEndpoint

	s.logger.Info("Waiting for UDP address")
	line, err = s.readLine()
	if err != nil {
		return s.reject(err)
	}
	endpoint, err := netip.ParseAddrPort(line)
	if err != nil {
		s.logger.Warn("Invalid UDP address", zap.String("address", line), zap.Error(err))
		return s.reject(fmt.Errorf("%w: %w", ErrBadEndpoint, err))
	}
	s.endpoint = endpoint
	s.state = Accepted
	return endpoint, nil
}

func (s *session) reject(err error) (netip.AddrPort, error) {
	if !errors.Is(err, ErrBadFlag) && !errors.Is(err, ErrBadEndpoint) {
		s.logger.Warn("Client read failed", zap.Stringer("state", s.state), zap.Error(err))
	}
	s.state = Rejected
	s.logger.Info("Client has been kicked")
	return netip.AddrPort{}, err
}

// readLine reads one line without its newline. A final line without newline
// is returned as is when the client closes its side.
func (s *session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
