package kadcast

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memTransport is an in-memory Transport fake wired to a shared switchboard,
// so a multi-peer harness can run without real sockets (the UDP driver is
// spec.md's explicit external collaborator — this fake is what lets tests
// exercise everything above that boundary).
type memTransport struct {
	addr *net.UDPAddr
	sb   *switchboard

	mu      sync.Mutex
	handler func(data []byte, from *net.UDPAddr)
	closed  bool
}

type switchboard struct {
	mu    sync.Mutex
	peers map[string]*memTransport
}

func newSwitchboard() *switchboard {
	return &switchboard{peers: make(map[string]*memTransport)}
}

func (sb *switchboard) register(t *memTransport) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.peers[t.addr.String()] = t
}

func newMemTransport(sb *switchboard, addr string) *memTransport {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		panic(err)
	}
	t := &memTransport{addr: udpAddr, sb: sb}
	sb.register(t)
	return t
}

func (t *memTransport) LocalAddr() *net.UDPAddr { return t.addr }

func (t *memTransport) SendTo(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	t.sb.mu.Lock()
	dst, ok := t.sb.peers[addr.String()]
	t.sb.mu.Unlock()
	if !ok {
		return nil // unreachable peer, dropped silently like a real lost datagram
	}
	dst.mu.Lock()
	h := dst.handler
	dst.mu.Unlock()
	if h != nil {
		go h(append([]byte(nil), data...), t.addr)
	}
	return nil
}

func (t *memTransport) Listen(ctx context.Context, handle func(data []byte, from *net.UDPAddr)) error {
	t.mu.Lock()
	t.handler = handle
	t.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (t *memTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

type recordingListener struct {
	mu       sync.Mutex
	messages [][]byte
}

func (l *recordingListener) OnMessage(message []byte, info MessageInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, append([]byte(nil), message...))
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func buildTestPeer(t *testing.T, sb *switchboard, addr string, bootstrap []string, listener NetworkListen, opts ...Option) *Peer {
	t.Helper()
	transport := newMemTransport(sb, addr)
	opts = append([]Option{WithFEC(false), WithRefreshInterval(time.Hour), WithCachePruneEvery(time.Hour)}, opts...)
	b := NewBuilder(addr, bootstrap, listener, opts...)
	b.WithTransport(transport)
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestTwoPeersJoinAndLearnEachOther(t *testing.T) {
	sb := newSwitchboard()
	l1 := &recordingListener{}
	l2 := &recordingListener{}

	p1 := buildTestPeer(t, sb, "127.0.0.1:40001", nil, l1)
	_ = buildTestPeer(t, sb, "127.0.0.1:40002", []string{"127.0.0.1:40001"}, l2)

	require.Eventually(t, func() bool {
		return p1.table.Len() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcastDeliversToPeer(t *testing.T) {
	sb := newSwitchboard()
	l1 := &recordingListener{}
	l2 := &recordingListener{}

	p1 := buildTestPeer(t, sb, "127.0.0.1:40011", nil, l1)
	p2 := buildTestPeer(t, sb, "127.0.0.1:40012", []string{"127.0.0.1:40011"}, l2)

	require.Eventually(t, func() bool {
		return p1.table.Len() >= 1 && p2.table.Len() >= 1
	}, time.Second, 5*time.Millisecond)

	err := p1.Broadcast(context.Background(), []byte("hello overlay"), 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return l2.count() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestPeerCloseStopsTasks(t *testing.T) {
	sb := newSwitchboard()
	p := buildTestPeer(t, sb, "127.0.0.1:40021", nil, &recordingListener{})
	require.NoError(t, p.Close())
}
