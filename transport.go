package kadcast

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/golang/glog"
)

// Transport is the capability seam in front of the UDP socket driver and
// its retry loop — the one piece spec.md §1 names as an external
// collaborator out of scope for this module's core. A thin default
// implementation is still provided below (SPEC_FULL.md §1: "external
// collaborator" doesn't mean "unimplemented" — it means swappable), so the
// module is usable standalone and so cmd/kadcast-node has something to run.
type Transport interface {
	LocalAddr() *net.UDPAddr
	SendTo(ctx context.Context, addr *net.UDPAddr, data []byte) error
	Listen(ctx context.Context, handle func(data []byte, from *net.UDPAddr)) error
	Close() error
}

// udpTransport is a minimal, best-effort UDP driver: one bound socket,
// fixed-count send retries, no backoff beyond a fixed interval. It reads
// its tuning from the same transport_conf string map original_source's
// Peer builder exposes (udp_send_retry_count, udp_send_retry_interval_millis).
type udpTransport struct {
	conn       *net.UDPConn
	retryCount int
	retryEvery time.Duration
}

func newUDPTransport(laddr *net.UDPAddr, conf map[string]string) (*udpTransport, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &udpTransport{
		conn:       conn,
		retryCount: atoiOr(conf["udp_send_retry_count"], 3),
		retryEvery: time.Duration(atoiOr(conf["udp_send_retry_interval_millis"], 5)) * time.Millisecond,
	}, nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (t *udpTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo retries up to retryCount times on a transient write error, with a
// fixed interval between attempts — the retry loop itself is the part
// spec.md explicitly excludes from core scope, kept deliberately simple.
func (t *udpTransport) SendTo(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= t.retryCount; attempt++ {
		_, err := t.conn.WriteToUDP(data, addr)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryEvery):
		}
	}
	return lastErr
}

const maxDatagramSize = 65507

// Listen reads datagrams until ctx is cancelled, invoking handle for each.
func (t *udpTransport) Listen(ctx context.Context, handle func(data []byte, from *net.UDPAddr)) error {
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Errorf("kadcast: udp read: %s", err)
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		handle(frame, from)
	}
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}
