package judger

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/skj-judge/skj-judge/types"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const finalFlag = 424242

var loopback = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}

// peer plays the client side of the exchange
type peer struct {
	t     *testing.T
	conn  *net.UDPConn
	judge *net.UDPAddr
}

type runResult struct {
	result *types.JudgeResult
	err    error
}

type collector struct {
	mu      sync.Mutex
	results []types.TaskResult
}

func (c *collector) observe(rt types.TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, rt)
}

func (c *collector) statuses() []types.ProgressStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s []types.ProgressStatus
	for _, r := range c.results {
		s = append(s, r.Status)
	}
	return s
}

func start(t *testing.T, ctx context.Context, conf Config) (*peer, *collector, <-chan runResult) {
	t.Helper()
	client, err := net.ListenUDP("udp", loopback)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	conn, err := Dial("127.0.0.1:0", client.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}

	c := &collector{}
	if conf.Logger == nil {
		conf.Logger = zaptest.NewLogger(t)
	}
	conf.Observer = c.observe
	j := New(conn, conf)

	ch := make(chan runResult, 1)
	go func() {
		defer conn.Close()
		rt, err := j.Run(ctx)
		ch <- runResult{rt, err}
	}()
	return &peer{t: t, conn: client, judge: conn.LocalAddr().(*net.UDPAddr)}, c, ch
}

func (p *peer) expect(want ...string) {
	p.t.Helper()
	buf := make([]byte, 2048)
	for _, w := range want {
		p.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			p.t.Fatalf("waiting for %q: %v", w, err)
		}
		if got := string(buf[:n]); got != w {
			p.t.Fatalf("datagram = %q, want %q", got, w)
		}
	}
}

func (p *peer) expectSilence() {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, _, err := p.conn.ReadFromUDP(make([]byte, 2048))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		p.t.Fatalf("unexpected datagram (%d bytes) or error %v", n, err)
	}
}

func (p *peer) send(msg string) {
	p.t.Helper()
	if _, err := p.conn.WriteToUDP([]byte(msg), p.judge); err != nil {
		p.t.Fatal(err)
	}
}

func wait(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return runResult{}
	}
}

func sum(a, b, c uint64) *types.SUM {
	return &types.SUM{Numbers: [3]uint64{a, b, c}, Result: a + b + c}
}

func TestRunPassed(t *testing.T) {
	p, c, ch := start(t, context.Background(), Config{
		Tasks:     []types.Task{sum(2, 3, 5)},
		FinalFlag: finalFlag,
	})
	p.expect("2\n", "3\n", "5\n")
	p.send("10\n")
	p.expect("424242\n")

	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.result.Passed != 1 || !r.result.FlagSent {
		t.Errorf("result = %+v", r.result)
	}
	rt := r.result.Tasks[0]
	if rt.Status != types.ProgressSucceeded || rt.Answer != "10" || rt.Expected != "10" || rt.Kind != types.KindSUM {
		t.Errorf("task result = %+v", rt)
	}
	if diff := cmp.Diff([]types.ProgressStatus{types.ProgressSucceeded}, c.statuses()); diff != "" {
		t.Errorf("observed (-want +got):\n%s", diff)
	}
}

func TestRunWrongAnswerStops(t *testing.T) {
	p, c, ch := start(t, context.Background(), Config{
		Tasks: []types.Task{
			sum(2, 3, 5),
			&types.StringConcat{Target: "1234567890", Result: "12345678901234567890"},
		},
		FinalFlag: finalFlag,
	})
	p.expect("2\n", "3\n", "5\n")
	p.send("11\n")
	p.expectSilence()

	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.result.Passed != 0 || r.result.FlagSent {
		t.Errorf("result = %+v", r.result)
	}
	want := []types.ProgressStatus{types.ProgressFailed, types.ProgressSkipped}
	if diff := cmp.Diff(want, c.statuses()); diff != "" {
		t.Errorf("observed (-want +got):\n%s", diff)
	}
	if got := r.result.Tasks[0].Answer; got != "11" {
		t.Errorf("answer = %q", got)
	}
}

func TestRunFlagRequiresAmount(t *testing.T) {
	tasks := []types.Task{
		sum(2, 3, 5),
		&types.XK{X: 1000000000, Power: 3, Result: 1000},
		&types.StringDeletion{Target: "1000000001", Del: '0', Result: "11"},
	}
	p, c, ch := start(t, context.Background(), Config{
		Tasks:       tasks,
		TasksAmount: 3,
		FinalFlag:   finalFlag,
	})
	p.expect("2\n", "3\n", "5\n")
	p.send("10\n")
	p.expect("1000000000\n")
	p.send("1000\n")
	p.expect("1000000001\n")
	p.send("111\n")
	p.expectSilence()

	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.result.Passed != 2 || r.result.FlagSent {
		t.Errorf("result = %+v", r.result)
	}
	want := []types.ProgressStatus{types.ProgressSucceeded, types.ProgressSucceeded, types.ProgressFailed}
	if diff := cmp.Diff(want, c.statuses()); diff != "" {
		t.Errorf("observed (-want +got):\n%s", diff)
	}
}

func TestRunAnswerFraming(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		passed bool
	}{
		{"no newline", "10", true},
		{"crlf", "10\r\n", false},
		{"two newlines", "10\n\n", false},
		{"leading zero", "010\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, ch := start(t, context.Background(), Config{
				Tasks:     []types.Task{sum(2, 3, 5)},
				FinalFlag: finalFlag,
			})
			p.expect("2\n", "3\n", "5\n")
			p.send(tt.answer)
			if tt.passed {
				p.expect("424242\n")
			}
			r := wait(t, ch)
			if r.err != nil {
				t.Fatal(r.err)
			}
			if r.result.FlagSent != tt.passed {
				t.Errorf("flag sent = %v, want %v", r.result.FlagSent, tt.passed)
			}
		})
	}
}

func TestRunOversizedAnswer(t *testing.T) {
	p, c, ch := start(t, context.Background(), Config{
		Tasks:     []types.Task{sum(2, 3, 5), sum(1, 1, 1)},
		FinalFlag: finalFlag,
	})
	p.expect("2\n", "3\n", "5\n")
	chunk := strings.Repeat("9", 1024)
	for i := 0; i < 11; i++ {
		p.send(chunk)
	}
	p.expectSilence()

	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	rt := r.result.Tasks[0]
	if !rt.Oversized || rt.Answer != "" || rt.Status != types.ProgressFailed {
		t.Errorf("task result = %+v", rt)
	}
	want := []types.ProgressStatus{types.ProgressFailed, types.ProgressSkipped}
	if diff := cmp.Diff(want, c.statuses()); diff != "" {
		t.Errorf("observed (-want +got):\n%s", diff)
	}
}

func TestRunMultiChunkAnswer(t *testing.T) {
	long := strings.Repeat("7", 1500)
	p, _, ch := start(t, context.Background(), Config{
		Tasks:     []types.Task{&types.StringConcat{Target: long[:750], Result: long}},
		FinalFlag: finalFlag,
	})
	p.expect(long[:750] + "\n")
	p.send(long[:1024])
	p.send(long[1024:] + "\n")
	p.expect("424242\n")

	r := wait(t, ch)
	if r.err != nil || !r.result.FlagSent {
		t.Errorf("result = %+v, err = %v", r.result, r.err)
	}
}

func TestRunIgnoresOtherPeers(t *testing.T) {
	p, _, ch := start(t, context.Background(), Config{
		Tasks:     []types.Task{sum(2, 3, 5)},
		FinalFlag: finalFlag,
	})
	p.expect("2\n", "3\n", "5\n")

	intruder, err := net.ListenUDP("udp", loopback)
	if err != nil {
		t.Fatal(err)
	}
	defer intruder.Close()
	if _, err := intruder.WriteToUDP([]byte("11\n"), p.judge); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	p.send("10\n")
	p.expect("424242\n")
	r := wait(t, ch)
	if r.err != nil || r.result.Passed != 1 {
		t.Errorf("result = %+v, err = %v", r.result, r.err)
	}
}

func TestRunCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, _, ch := start(t, ctx, Config{
		Tasks:     []types.Task{sum(2, 3, 5)},
		FinalFlag: finalFlag,
	})
	p.expect("2\n", "3\n", "5\n")
	cancel()

	r := wait(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", r.err)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	p, _, ch := start(t, context.Background(), Config{FinalFlag: finalFlag})
	p.expect("424242\n")
	r := wait(t, ch)
	if r.err != nil || !r.result.FlagSent {
		t.Errorf("result = %+v, err = %v", r.result, r.err)
	}
}

func TestDialBadAddress(t *testing.T) {
	if _, err := Dial("not an address", loopback); err == nil {
		t.Error("expected error")
	}
}

func TestRunFailedTaskLogsMismatch(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p, c, ch := start(t, context.Background(), Config{
		Tasks:     []types.Task{sum(2, 3, 5)},
		FinalFlag: finalFlag,
		Logger:    zap.New(core),
	})
	p.expect("2\n", "3\n", "5\n")
	p.send("19\n")
	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if diff := cmp.Diff([]types.ProgressStatus{types.ProgressFailed}, c.statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}

	entries := logs.FilterMessage("Task failed").All()
	if len(entries) != 1 {
		t.Fatalf("failure logged %d times", len(entries))
	}
	msg := entries[0].ContextMap()["error"]
	if s, _ := msg.(string); !strings.Contains(s, "at byte 1") {
		t.Errorf("error field = %v", msg)
	}
}
