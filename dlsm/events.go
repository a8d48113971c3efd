package dlsm

import (
	"github.com/vk7xyz/ax25d/pkg/frame"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// EventKind enumerates every input the data-link state machine reacts to:
// the error conditions raised by the frame decoder, the socket-layer DL
// primitives, the inbound frame types, and the internal timer/queue events.
type EventKind int

const (
	EvCtrlError EventKind = iota
	EvInfoNotPermitted
	EvIncorrectLength

	EvDLConnect
	EvDLDisconnect
	EvDLData
	EvDLUnitData
	EvDLFlowOn
	EvDLFlowOff

	EvLMData

	EvUA
	EvDM
	EvUI
	EvDISC
	EvSABM
	EvSABME
	EvTEST
	EvI
	EvRR
	EvRNR
	EvREJ
	EvSREJ
	EvFRMR
	EvXID
	EvUnknownFrame

	EvTimerExpireT1
	EvTimerExpireT2
	EvTimerExpireT3

	EvDrainSendq
)

// Event carries everything a state handler might need: the address vector
// as transmitted (with AddrDst/AddrSrc indices below), the frame's
// command/response classification and P/F bits, the N(S)/N(R) the frame
// carried, its information field, and the Connection/Socket this event was
// resolved against (nil when the state machine has not yet found-or-created
// a Connection for it, e.g. an ingress SABM).
type Event struct {
	Kind EventKind
	Port uint8

	Addresses []ssid.Address
	Type      frame.CmdRes
	P, F      bool
	NS, NR    uint8
	Info      []byte

	Conn   *Connection
	Socket *Socket
}

// Address slots within Addresses, as transmitted on the wire: index 0 is
// always the destination, index 1 the source.
const (
	AddrDst = 0
	AddrSrc = 1
)
