package kadcast

import "net"

// NetworkListen is the application message-handler callback spec.md treats
// as an external collaborator (§1): the overlay never interprets a
// delivered payload, it only reassembles and routes it.
//
// Grounded on original_source/tests/lib.rs's NetworkListen trait
// (fn on_message(&self, message: Vec<u8>, metadata: MessageInfo)).
type NetworkListen interface {
	OnMessage(message []byte, info MessageInfo)
}

// MessageInfo carries the metadata a delivered broadcast payload comes
// with: a source address slot, and at what height it was still travelling
// when this node received it.
type MessageInfo struct {
	src    *net.UDPAddr
	height uint8
}

// Src returns the source address stored in m. Peer's delivery path fills
// in only the height, so for payloads a Peer delivers Src returns nil.
func (m MessageInfo) Src() *net.UDPAddr { return m.src }

// Height returns the height the message carried on arrival.
func (m MessageInfo) Height() uint8 { return m.height }

// NetworkListenFunc adapts a plain function to NetworkListen.
type NetworkListenFunc func(message []byte, info MessageInfo)

func (f NetworkListenFunc) OnMessage(message []byte, info MessageInfo) { f(message, info) }
