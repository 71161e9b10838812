// Package client is a reference implementation of the student side of the
// protocol. It knows the assignment (the generated batch) but computes every
// answer from the operands it receives.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/skj-judge/skj-judge/pkg/datagram"
	"github.com/skj-judge/skj-judge/types"
	"go.uber.org/zap"
)

// ErrNoFlag is returned when the judge did not send a final flag
var ErrNoFlag = errors.New("client: final flag not received")

// Config defines the client side of a run
type Config struct {
	// TCPAddr is the handshake address of the judge
	TCPAddr string
	// UDPAddr is the local address answers are sent from
	UDPAddr  string
	InitFlag uint64

	// Tasks is the assignment, the same batch the judge generated
	Tasks []types.Task

	// Answer overrides the computed answer of a task when not nil,
	// used to play a faulty client
	Answer func(index int, t types.Task, given []string) string

	Logger *zap.Logger
}

// Client runs a single session against a judge
type Client struct {
	conf   Config
	logger *zap.Logger
}

// New creates a client
func New(conf Config) *Client {
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conf: conf, logger: logger}
}

// Run performs the handshake, answers every task and returns the final flag
// text. It returns ErrNoFlag when the judge closes the exchange without one.
func (c *Client) Run(ctx context.Context) (string, error) {
	conn, err := net.ListenPacket("udp", c.conf.UDPAddr)
	if err != nil {
		return "", fmt.Errorf("client: listen %s: %w", c.conf.UDPAddr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.handshake(ctx, conn.LocalAddr().(*net.UDPAddr)); err != nil {
		return "", wrapCtx(ctx, err)
	}

	ex := &exchange{conn: conn, buf: make([]byte, datagram.ChunkSize)}
	for i, t := range c.conf.Tasks {
		given, err := ex.receive(len(t.Given()))
		if err != nil {
			return "", c.stopped(ctx, fmt.Errorf("client: task %d: %w", i, err))
		}
		var answer string
		if c.conf.Answer != nil {
			answer = c.conf.Answer(i, t, given)
		} else if answer, err = Solve(t, given); err != nil {
			return "", fmt.Errorf("client: task %d: %w", i, err)
		}
		c.logger.Info("Answering", zap.Int("task", i), zap.Stringer("kind", t.Kind()), zap.String("answer", answer))
		if err := ex.send(answer); err != nil {
			return "", wrapCtx(ctx, fmt.Errorf("client: task %d: %w", i, err))
		}
		// after a wrong answer the judge goes silent
		conn.SetReadDeadline(time.Now().Add(answerWait))
	}

	flag, err := ex.receive(1)
	if err != nil {
		return "", c.stopped(ctx, fmt.Errorf("client: final flag: %w", err))
	}
	c.logger.Info("Final flag received", zap.String("flag", flag[0]))
	return flag[0], nil
}

// stopped maps a receive timeout to ErrNoFlag
func (c *Client) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.logger.Warn("Judge stopped the exchange", zap.Error(err))
		return ErrNoFlag
	}
	return err
}

// answerWait bounds the wait for the next datagram once an answer is sent
var answerWait = 2 * time.Second

func (c *Client) handshake(ctx context.Context, local *net.UDPAddr) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.conf.TCPAddr)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.conf.TCPAddr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	endpoint := advertised(local)
	c.logger.Info("Sending handshake", zap.String("endpoint", endpoint))
	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "%d\n%s\n", c.conf.InitFlag, endpoint)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("client: handshake: %w", err)
	}

	// the judge never writes, it only closes the connection
	if _, err := io.Copy(io.Discard, conn); err != nil {
		return fmt.Errorf("client: handshake: %w", err)
	}
	return nil
}

// advertised returns the endpoint text for local, replacing an unspecified
// IP with the loopback address
func advertised(local *net.UDPAddr) string {
	ip := local.IP
	if ip == nil || ip.IsUnspecified() {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return (&net.UDPAddr{IP: ip, Port: local.Port}).String()
}

type exchange struct {
	conn  net.PacketConn
	judge net.Addr
	buf   []byte
}

// receive reads n datagrams and returns their values without the newline.
// The sender of the first datagram becomes the judge address.
func (e *exchange) receive(n int) ([]string, error) {
	values := make([]string, 0, n)
	for len(values) < n {
		m, addr, err := e.conn.ReadFrom(e.buf)
		if err != nil {
			return nil, err
		}
		if e.judge == nil {
			e.judge = addr
		} else if addr.String() != e.judge.String() {
			continue
		}
		values = append(values, strings.TrimSuffix(string(e.buf[:m]), "\n"))
	}
	return values, nil
}

func (e *exchange) send(answer string) error {
	_, err := e.conn.WriteTo(datagram.Packet(answer), e.judge)
	return err
}

func wrapCtx(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
