// Package wire implements the Kadcast datagram codec: the five message
// kinds, their shared header, and little-endian framing of every field.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/legitnull/kadcast/peerid"
)

// Kind tags a Message's wire variant.
type Kind uint8

const (
	KindPing Kind = iota
	KindPong
	KindFindNodes
	KindNodes
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindFindNodes:
		return "FindNodes"
	case KindNodes:
		return "Nodes"
	case KindBroadcast:
		return "Broadcast"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Sentinel errors. Every decode failure wraps one of these so callers can
// classify it with errors.Is without string matching.
var (
	ErrDecode          = errors.New("wire: malformed datagram")
	ErrUnknownKind     = fmt.Errorf("%w: unknown message kind", ErrDecode)
	ErrTruncated       = fmt.Errorf("%w: truncated datagram", ErrDecode)
	ErrReservedNonZero = fmt.Errorf("%w: reserved header bytes must be zero", ErrDecode)
)

// Header is shared by every message variant.
type Header struct {
	SenderID   peerid.BinaryKey
	SenderPort uint16
	Reserved   [2]byte // must-be-zero on send, ignored on receive (spec §9)
}

// PeerEncodedInfo is the wire form of a single peer entry inside a Nodes or
// FindNodes-response payload.
type PeerEncodedInfo struct {
	IP   net.IP // 4 or 16 bytes, already normalized
	Port uint16
	ID   peerid.BinaryKey
}

// Addr returns the UDP address this entry describes.
func (p PeerEncodedInfo) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: p.IP, Port: int(p.Port)}
}

// NodesPayload carries a bounded list of peers, the payload of a Nodes
// reply (FindNodes carries a FindNodesPayload instead).
type NodesPayload struct {
	Peers []PeerEncodedInfo
}

// FindNodesPayload carries the key being searched for.
type FindNodesPayload struct {
	Target peerid.BinaryKey
}

// BroadcastPayload carries the Kadcast hop counter and the gossip frame
// (either a raw application payload pre-FEC, or uid||transmission_info||chunk
// post-FEC — the fec package is the only thing that interprets the bytes).
type BroadcastPayload struct {
	Height      uint8
	GossipFrame []byte
}

// Message is a tagged union over the five Kadcast wire variants. Exactly
// one of the payload fields is meaningful, selected by Kind.
type Message struct {
	Kind      Kind
	Header    Header
	FindNodes FindNodesPayload
	Nodes     NodesPayload
	Broadcast BroadcastPayload
}

// Encode marshals m to its wire form.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalHeader(&buf, m.Kind, m.Header); err != nil {
		return nil, err
	}
	switch m.Kind {
	case KindPing, KindPong:
		// header only
	case KindFindNodes:
		buf.Write(m.FindNodes.Target[:])
	case KindNodes:
		if err := marshalNodes(&buf, m.Nodes); err != nil {
			return nil, err
		}
	case KindBroadcast:
		buf.WriteByte(m.Broadcast.Height)
		buf.Write(m.Broadcast.GossipFrame)
	default:
		return nil, ErrUnknownKind
	}
	return buf.Bytes(), nil
}

// Decode parses a datagram into a Message.
func Decode(data []byte) (Message, error) {
	r := bytes.NewReader(data)
	var kindByte [1]byte
	if _, err := readFull(r, kindByte[:]); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	kind := Kind(kindByte[0])

	header, err := unmarshalHeader(r)
	if err != nil {
		return Message{}, err
	}

	m := Message{Kind: kind, Header: header}
	switch kind {
	case KindPing, KindPong:
		// no payload
	case KindFindNodes:
		var target peerid.BinaryKey
		if _, err := readFull(r, target[:]); err != nil {
			return Message{}, fmt.Errorf("%w: find_nodes target: %v", ErrTruncated, err)
		}
		m.FindNodes = FindNodesPayload{Target: target}
	case KindNodes:
		payload, err := unmarshalNodes(r)
		if err != nil {
			return Message{}, err
		}
		m.Nodes = payload
	case KindBroadcast:
		var height [1]byte
		if _, err := readFull(r, height[:]); err != nil {
			return Message{}, fmt.Errorf("%w: broadcast height: %v", ErrTruncated, err)
		}
		rest := make([]byte, r.Len())
		if _, err := readFull(r, rest); err != nil {
			return Message{}, fmt.Errorf("%w: broadcast frame: %v", ErrTruncated, err)
		}
		m.Broadcast = BroadcastPayload{Height: height[0], GossipFrame: rest}
	default:
		return Message{}, ErrUnknownKind
	}
	return m, nil
}

func marshalHeader(buf *bytes.Buffer, kind Kind, h Header) error {
	buf.WriteByte(byte(kind))
	buf.Write(h.SenderID[:])
	var portBytes [2]byte
	binary.LittleEndian.PutUint16(portBytes[:], h.SenderPort)
	buf.Write(portBytes[:])
	if h.Reserved != ([2]byte{}) {
		return ErrReservedNonZero
	}
	buf.Write(h.Reserved[:])
	return nil
}

func unmarshalHeader(r *bytes.Reader) (Header, error) {
	var h Header
	if _, err := readFull(r, h.SenderID[:]); err != nil {
		return Header{}, fmt.Errorf("%w: header id: %v", ErrTruncated, err)
	}
	var portBytes [2]byte
	if _, err := readFull(r, portBytes[:]); err != nil {
		return Header{}, fmt.Errorf("%w: header port: %v", ErrTruncated, err)
	}
	h.SenderPort = binary.LittleEndian.Uint16(portBytes[:])
	if _, err := readFull(r, h.Reserved[:]); err != nil {
		return Header{}, fmt.Errorf("%w: header reserved: %v", ErrTruncated, err)
	}
	return h, nil
}

func marshalNodes(buf *bytes.Buffer, payload NodesPayload) error {
	n := len(payload.Peers)
	if n == 0 {
		// Count may be omitted entirely on send (spec §4.1); receive side
		// still tolerates an explicit zero count.
		return nil
	}
	var countBytes [2]byte
	binary.LittleEndian.PutUint16(countBytes[:], uint16(n))
	buf.Write(countBytes[:])
	for _, p := range payload.Peers {
		if err := marshalPeerInfo(buf, p); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalNodes(r *bytes.Reader) (NodesPayload, error) {
	if r.Len() == 0 {
		// No count byte at all: treat as zero entries, for robustness with
		// senders that omit the count on an empty list.
		return NodesPayload{}, nil
	}
	var countBytes [2]byte
	if _, err := readFull(r, countBytes[:]); err != nil {
		return NodesPayload{}, fmt.Errorf("%w: nodes count: %v", ErrTruncated, err)
	}
	count := binary.LittleEndian.Uint16(countBytes[:])
	peers := make([]PeerEncodedInfo, 0, count)
	for i := uint16(0); i < count; i++ {
		p, err := unmarshalPeerInfo(r)
		if err != nil {
			return NodesPayload{}, err
		}
		peers = append(peers, p)
	}
	return NodesPayload{Peers: peers}, nil
}

func marshalPeerInfo(buf *bytes.Buffer, p PeerEncodedInfo) error {
	if v4 := p.IP.To4(); v4 != nil {
		if v4[0] == 0 {
			return errors.New("wire: ipv4 address cannot start with a zero octet (ambiguous with the ipv6 tag byte)")
		}
		buf.Write(v4)
	} else {
		buf.WriteByte(0)
		buf.Write(p.IP.To16())
	}
	var portBytes [2]byte
	binary.LittleEndian.PutUint16(portBytes[:], p.Port)
	buf.Write(portBytes[:])
	buf.Write(p.ID[:])
	return nil
}

func unmarshalPeerInfo(r *bytes.Reader) (PeerEncodedInfo, error) {
	var first [4]byte
	if _, err := readFull(r, first[:]); err != nil {
		return PeerEncodedInfo{}, fmt.Errorf("%w: peer info tag/ipv4: %v", ErrTruncated, err)
	}
	var ip net.IP
	if first[0] != 0 {
		ip = net.IP(append([]byte(nil), first[:]...))
	} else {
		var rest [13]byte
		if _, err := readFull(r, rest[:]); err != nil {
			return PeerEncodedInfo{}, fmt.Errorf("%w: peer info ipv6: %v", ErrTruncated, err)
		}
		full := make([]byte, 0, 16)
		full = append(full, first[1:]...)
		full = append(full, rest[:]...)
		ip = net.IP(full)
	}
	var portBytes [2]byte
	if _, err := readFull(r, portBytes[:]); err != nil {
		return PeerEncodedInfo{}, fmt.Errorf("%w: peer info port: %v", ErrTruncated, err)
	}
	port := binary.LittleEndian.Uint16(portBytes[:])
	var id peerid.BinaryKey
	if _, err := readFull(r, id[:]); err != nil {
		return PeerEncodedInfo{}, fmt.Errorf("%w: peer info id: %v", ErrTruncated, err)
	}
	return PeerEncodedInfo{IP: ip, Port: port, ID: id}, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, errors.New("short read")
		}
	}
	return n, nil
}
