package handshake

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/nettest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testFlag = 7283645

type recorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *recorder) observe(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *recorder) get() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attempt(nil), r.attempts...)
}

type acceptResult struct {
	addr *net.UDPAddr
	err  error
}

func startListener(t *testing.T, ctx context.Context) (*Listener, *recorder, <-chan acceptResult) {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	rec := &recorder{}
	l := NewListener(ln, Config{
		InitFlag: testFlag,
		Logger:   zaptest.NewLogger(t),
		Observer: rec.observe,
	})
	t.Cleanup(func() { l.Close() })

	ch := make(chan acceptResult, 1)
	go func() {
		addr, err := l.Accept(ctx)
		ch <- acceptResult{addr, err}
	}()
	return l, rec, ch
}

// sendLines connects, writes payload, shuts down its write side and waits
// until the server closes the connection
func sendLines(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial(addr.Network(), addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := conn.Read(make([]byte, 16))
	if n != 0 || err == nil {
		t.Fatalf("server should write nothing and close, got n=%d err=%v", n, err)
	}
}

func waitResult(t *testing.T, ch <-chan acceptResult) acceptResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Accept did not return")
		return acceptResult{}
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		endpoint string
	}{
		{"ipv4", "7283645\n127.0.0.1:5000\n", "127.0.0.1:5000"},
		{"ipv6", "7283645\n[::1]:6000\n", "[::1]:6000"},
		{"last line without newline", "7283645\n10.0.0.1:7000", "10.0.0.1:7000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rec, ch := startListener(t, context.Background())
			sendLines(t, l.Addr(), tt.payload)

			r := waitResult(t, ch)
			if r.err != nil {
				t.Fatalf("Accept error: %v", r.err)
			}
			if r.addr.String() != tt.endpoint {
				t.Errorf("endpoint = %s, want %s", r.addr, tt.endpoint)
			}

			attempts := rec.get()
			if len(attempts) != 1 || attempts[0].State != Accepted || attempts[0].Endpoint != tt.endpoint {
				t.Errorf("attempts = %+v", attempts)
			}

			// the listening phase is over
			if conn, err := net.Dial(l.Addr().Network(), l.Addr().String()); err == nil {
				conn.Close()
				t.Error("listener still accepting after success")
			}
		})
	}
}

func TestRejectThenAccept(t *testing.T) {
	l, rec, ch := startListener(t, context.Background())

	sendLines(t, l.Addr(), "1\n127.0.0.1:5000\n")
	sendLines(t, l.Addr(), "7283645\nlocalhost:5000\n")
	sendLines(t, l.Addr(), "7283645\n127.0.0.1\n")
	sendLines(t, l.Addr(), "7283645\n")
	sendLines(t, l.Addr(), "7283645\n127.0.0.1:5001\n")

	r := waitResult(t, ch)
	if r.err != nil {
		t.Fatalf("Accept error: %v", r.err)
	}
	if r.addr.String() != "127.0.0.1:5001" {
		t.Errorf("endpoint = %s", r.addr)
	}

	attempts := rec.get()
	if len(attempts) != 5 {
		t.Fatalf("got %d attempts: %+v", len(attempts), attempts)
	}
	wantErr := []error{ErrBadFlag, ErrBadEndpoint, ErrBadEndpoint, io.EOF}
	for i, want := range wantErr {
		a := attempts[i]
		if a.State != Rejected || !errors.Is(a.Err, want) {
			t.Errorf("attempt %d = %+v, want rejected with %v", i, a, want)
		}
	}
	if last := attempts[4]; last.State != Accepted || last.Err != nil {
		t.Errorf("last attempt = %+v", last)
	}
}

func TestAcceptCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, _, ch := startListener(t, ctx)
	cancel()

	r := waitResult(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", r.err)
	}
}

func TestAcceptCancelDuringSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, _, ch := startListener(t, ctx)

	conn, err := net.Dial(l.Addr().Network(), l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	io.WriteString(conn, "7283645\n")

	// give the server time to reach the second read
	time.Sleep(50 * time.Millisecond)
	cancel()

	r := waitResult(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", r.err)
	}
}

func TestListenError(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if _, err := Listen(ln.Addr().String(), Config{InitFlag: 1}); err == nil {
		t.Error("expected bind error on an address in use")
	}
	if _, err := Listen("not an address", Config{InitFlag: 1}); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		AwaitingFlag:     "AwaitingFlag",
		AwaitingEndpoint: "AwaitingEndpoint",
		Accepted:         "Accepted",
		Rejected:         "Rejected",
		State(0):         "Unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
