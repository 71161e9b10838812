// Package judger drives the UDP phase of a run: it pushes the operands of
// each task to the client, reads the answer back and verifies it.
package judger

import (
	"fmt"
	"net"

	"github.com/skj-judge/skj-judge/types"
	"go.uber.org/zap"
)

// Config defines the exchange of a single run
type Config struct {
	// Tasks is the generated batch, in the order it is sent
	Tasks []types.Task

	// TasksAmount is the number of passed tasks required for the final flag,
	// defaults to len(Tasks)
	TasksAmount int
	FinalFlag   uint64

	Logger *zap.Logger

	// Observer is called for every task once its outcome is known, including
	// the tasks skipped after a failure
	Observer func(types.TaskResult)
}

// Judger sends tasks over a connected datagram socket and checks answers
type Judger struct {
	conn     net.Conn
	tasks    []types.Task
	amount   int
	flag     uint64
	logger   *zap.Logger
	observer func(types.TaskResult)
}

// Dial binds the local UDP address and connects it to the client endpoint,
// so that only datagrams from the client are read
func Dial(udpAddr string, endpoint *net.UDPAddr) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("judger: resolve %s: %w", udpAddr, err)
	}
	conn, err := net.DialUDP("udp", laddr, endpoint)
	if err != nil {
		return nil, fmt.Errorf("judger: dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// New creates a judger over a connected datagram socket. The caller keeps
// the ownership of conn.
func New(conn net.Conn, conf Config) *Judger {
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	amount := conf.TasksAmount
	if amount <= 0 {
		amount = len(conf.Tasks)
	}
	return &Judger{
		conn:     conn,
		tasks:    conf.Tasks,
		amount:   amount,
		flag:     conf.FinalFlag,
		logger:   logger,
		observer: conf.Observer,
	}
}
