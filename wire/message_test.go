package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legitnull/kadcast/peerid"
)

func headerFor(t *testing.T, addr string) Header {
	t.Helper()
	udp, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)
	return Header{
		SenderID:   peerid.ComputeID(udp.IP, uint16(udp.Port)),
		SenderPort: uint16(udp.Port),
	}
}

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	encoded, err := Encode(m)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	return decoded
}

func TestEncodePing(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	m := Message{Kind: KindPing, Header: h}

	encoded, err := Encode(m)
	require.NoError(t, err)

	// kind(1) || id(16) || port_le(2) || reserved(2)
	require.Len(t, encoded, 1+peerid.KeyLenBytes+2+2)
	assert.Equal(t, byte(0), encoded[0])
	assert.Equal(t, byte(0x9A), encoded[len(encoded)-4]) // 666 = 0x029A, LE low byte
	assert.Equal(t, byte(0x02), encoded[len(encoded)-3])
	assert.Equal(t, byte(0), encoded[len(encoded)-2])
	assert.Equal(t, byte(0), encoded[len(encoded)-1])

	assert.Equal(t, m, roundTrip(t, m))
}

func TestEncodePong(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	m := Message{Kind: KindPong, Header: h}
	assert.Equal(t, m, roundTrip(t, m))
}

func TestEncodeFindNodes(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	target := peerid.ComputeID(net.ParseIP("10.0.0.1"), 333)
	m := Message{Kind: KindFindNodes, Header: h, FindNodes: FindNodesPayload{Target: target}}
	assert.Equal(t, m, roundTrip(t, m))
}

func peerInfo(t *testing.T, addr string) PeerEncodedInfo {
	t.Helper()
	udp, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)
	ip := udp.IP.To4()
	if ip == nil {
		ip = udp.IP.To16()
	}
	return PeerEncodedInfo{
		IP:   ip,
		Port: uint16(udp.Port),
		ID:   peerid.ComputeID(udp.IP, uint16(udp.Port)),
	}
}

func TestEncodeNodes(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	peers := []PeerEncodedInfo{
		peerInfo(t, "192.168.1.1:666"),
		peerInfo(t, "[2001:0db8:85a3:0000:0000:8a2e:0370:7334]:666"),
	}
	m := Message{Kind: KindNodes, Header: h, Nodes: NodesPayload{Peers: peers}}
	assert.Equal(t, m, roundTrip(t, m))
}

func TestEncodeNodesEmpty(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	m := Message{Kind: KindNodes, Header: h}
	got := roundTrip(t, m)
	assert.Empty(t, got.Nodes.Peers)
}

func TestDecodeNodesExplicitZeroCount(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	encoded, err := Encode(Message{Kind: KindNodes, Header: h})
	require.NoError(t, err)
	encoded = append(encoded, 0, 0) // explicit zero-length count on the wire

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded.Nodes.Peers)
}

func TestEncodeBroadcast(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	m := Message{
		Kind:   KindBroadcast,
		Header: h,
		Broadcast: BroadcastPayload{
			Height:      10,
			GossipFrame: []byte{3, 5, 6, 7},
		},
	}
	assert.Equal(t, m, roundTrip(t, m))
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2})
	require.Error(t, err)
}

func TestHeaderReservedMustBeZero(t *testing.T) {
	h := headerFor(t, "192.168.0.1:666")
	h.Reserved = [2]byte{1, 0}
	_, err := Encode(Message{Kind: KindPing, Header: h})
	require.Error(t, err)
}
