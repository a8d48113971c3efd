// Package frame implements the AX.25 link-layer frame codec: address-block
// parsing with digipeat/active-destination resolution, the 8-bit/16-bit
// control-field duality, and construction of reply frames.
package frame

import (
	"errors"
	"fmt"

	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// MaxAddresses is the largest number of addresses (destination, source, and
// up to two digipeaters) a frame may carry.
const MaxAddresses = 4

// PID is an AX.25 Layer-3 protocol identifier.
type PID uint8

// PIDNoL3 marks an I/UI frame as carrying no Layer-3 protocol; applications
// built on this core exchange raw bytes tagged with this PID.
const PIDNoL3 PID = 0xF0

var (
	// ErrTooFewAddresses is returned when a frame has fewer than 2 addresses.
	ErrTooFewAddresses = errors.New("frame: fewer than 2 addresses")
	// ErrTooManyAddresses is returned when a frame has more than MaxAddresses.
	ErrTooManyAddresses = errors.New("frame: more than 4 addresses")
	// ErrTruncated is returned when the byte slice ends mid-field.
	ErrTruncated = errors.New("frame: truncated")
)

// Kind identifies the decoded frame's AX.25 frame type.
type Kind int

// Recognised frame kinds.
const (
	KindUnknown Kind = iota
	KindSABM
	KindSABME
	KindDISC
	KindDM
	KindUA
	KindFRMR
	KindUI
	KindXID
	KindTEST
	KindI
	KindRR
	KindRNR
	KindREJ
	KindSREJ
)

func (k Kind) String() string {
	switch k {
	case KindSABM:
		return "SABM"
	case KindSABME:
		return "SABME"
	case KindDISC:
		return "DISC"
	case KindDM:
		return "DM"
	case KindUA:
		return "UA"
	case KindFRMR:
		return "FRMR"
	case KindUI:
		return "UI"
	case KindXID:
		return "XID"
	case KindTEST:
		return "TEST"
	case KindI:
		return "I"
	case KindRR:
		return "RR"
	case KindRNR:
		return "RNR"
	case KindREJ:
		return "REJ"
	case KindSREJ:
		return "SREJ"
	default:
		return "UNKNOWN"
	}
}

// CmdRes classifies a frame by the command/response bits carried in the
// destination and source address high bits.
type CmdRes int

// The four combinations of destination/source command-response bits.
const (
	Prev0 CmdRes = iota // neither bit set — pre-1984 convention
	Cmd                 // destination bit set, source clear
	Res                 // destination clear, source bit set
	Prev3               // both bits set — pre-1984 convention
)

// Decoded is a fully parsed AX.25 frame, ready for DLSM dispatch.
type Decoded struct {
	Addresses       []ssid.Address
	ActiveDestIndex int
	Type            CmdRes
	Kind            Kind
	P, F            bool
	NR, NS          uint8
	Info            []byte
}

// Decode parses raw AX.25 frame bytes. modulo selects the control-field
// width for S/I frames (8 => one byte, 128 => two bytes); callers without an
// established connection should pass 8.
func Decode(data []byte, modulo uint8) (Decoded, error) {
	var addrs []ssid.Address
	var highBits []bool

	offset := 0
	for {
		if len(data)-offset < ssid.WireLen {
			return Decoded{}, ErrTruncated
		}
		var raw [ssid.WireLen]byte
		copy(raw[:], data[offset:offset+ssid.WireLen])

		addr, last, highBit, err := ssid.DecodeWire(raw)
		if err != nil {
			return Decoded{}, err
		}

		addrs = append(addrs, addr)
		highBits = append(highBits, highBit)
		offset += ssid.WireLen

		if last {
			break
		}
		if len(addrs) >= MaxAddresses {
			return Decoded{}, ErrTooManyAddresses
		}
	}

	if len(addrs) < 2 {
		return Decoded{}, ErrTooFewAddresses
	}

	d := Decoded{
		Addresses:       addrs,
		ActiveDestIndex: activeDestinationIndex(highBits),
		Type:            classify(highBits[0], highBits[1]),
	}

	if len(data)-offset < 1 {
		return Decoded{}, ErrTruncated
	}
	control0 := data[offset]

	if isUFrame(control0) {
		offset++
		if d.Type == Cmd {
			d.P = control0&control8PF != 0
		} else {
			d.F = control0&control8PF != 0
		}
		d.Kind = decodeUFrame(control0)
	} else {
		extended := modulo == 128
		if extended {
			if len(data)-offset < 2 {
				return Decoded{}, ErrTruncated
			}
			control16 := uint16(data[offset]) | uint16(data[offset+1])<<8
			offset += 2

			if d.Type == Cmd {
				d.P = control16&control16PF != 0
			} else {
				d.F = control16&control16PF != 0
			}
			d.NR = uint8((control16 & control16NR) >> 9)

			if control16&control16I == 0 {
				d.NS = uint8((control16 & control16NS) >> 1)
				d.Kind = KindI
			} else {
				d.Kind = decodeSFrame16(control16)
			}
		} else {
			offset++
			if d.Type == Cmd {
				d.P = control0&control8PF != 0
			} else {
				d.F = control0&control8PF != 0
			}
			d.NR = control0 >> 5

			if control0&control8I == 0 {
				d.NS = (control0 & control8NS) >> 1
				d.Kind = KindI
			} else {
				d.Kind = decodeSFrame8(control0)
			}
		}
	}

	d.Info = data[offset:]

	return d, nil
}

const (
	control8I  = 0b0000_0001
	control8SU = 0b0000_0011
	control8NS = 0b0000_1110
	control8S  = 0b0000_1100
	control8PF = 0b0001_0000
	control8M  = 0b1110_1100

	control16NR = 0b1111_1110_0000_0000
	control16PF = 0b0000_0001_0000_0000
	control16NS = 0b0000_0000_1111_1110
	control16S  = 0b0000_0000_0000_1100
	control16I  = 0b0000_0000_0000_0001
)

func isUFrame(control uint8) bool {
	return control&control8SU == 0b11
}

func classify(destHigh, srcHigh bool) CmdRes {
	var t CmdRes
	if destHigh {
		t |= Cmd
	}
	if srcHigh {
		t |= Res
	}
	return t
}

// activeDestinationIndex returns the first digipeater slot (index 2 or 3)
// whose hop bit is unset, or the destination (index 0) if all digipeaters
// have already relayed the frame.
func activeDestinationIndex(highBits []bool) int {
	for i := 2; i < len(highBits); i++ {
		if !highBits[i] {
			return i
		}
	}
	return 0
}

func decodeUFrame(control uint8) Kind {
	switch control & control8M {
	case 0b0010_1100:
		return KindSABM
	case 0b0110_1100:
		return KindSABME
	case 0b0100_0000:
		return KindDISC
	case 0b0000_1100:
		return KindDM
	case 0b0110_0000:
		return KindUA
	case 0b1000_0100:
		return KindFRMR
	case 0b0000_0000:
		return KindUI
	case 0b1010_1100:
		return KindXID
	case 0b1110_0000:
		return KindTEST
	default:
		return KindUnknown
	}
}

func decodeSFrame8(control uint8) Kind {
	switch control & control8S {
	case 0b0000_0000:
		return KindRR
	case 0b0000_0100:
		return KindRNR
	case 0b0000_1000:
		return KindREJ
	case 0b0000_1100:
		return KindSREJ
	default:
		return KindUnknown
	}
}

func decodeSFrame16(control uint16) Kind {
	switch control & control16S {
	case 0b0000_0000_0000_0000:
		return KindRR
	case 0b0000_0000_0000_0100:
		return KindRNR
	case 0b0000_0000_0000_1000:
		return KindREJ
	case 0b0000_0000_0000_1100:
		return KindSREJ
	default:
		return KindUnknown
	}
}

// ReplyContext supplies the addressing information needed to build a reply
// or a locally-originated frame: either the addresses of the frame being
// answered (digipeaters included) or, for internally-synthesised frames, a
// bare local/remote pair.
type ReplyContext struct {
	Addresses    []ssid.Address
	Local, Remote ssid.Address
	Modulo       uint8
}

func (ctx ReplyContext) orderedReplyAddresses() []ssid.Address {
	if len(ctx.Addresses) == 0 {
		return []ssid.Address{ctx.Remote, ctx.Local}
	}
	ordered := make([]ssid.Address, 0, len(ctx.Addresses))
	ordered = append(ordered, ctx.Addresses[1], ctx.Addresses[0])
	for i := len(ctx.Addresses) - 1; i >= 2; i-- {
		ordered = append(ordered, ctx.Addresses[i])
	}
	return ordered
}

func pushAddresses(out []byte, ctx ReplyContext, typ CmdRes) []byte {
	ordered := ctx.orderedReplyAddresses()
	start := len(out)
	for i, a := range ordered {
		last := i == len(ordered)-1
		wire := ssid.EncodeWire(a, last, false)
		out = append(out, wire[:]...)
	}
	if typ == Cmd || typ == Prev3 {
		out[start+ssid.WireLen-1] |= 0b1000_0000
	}
	if typ == Res || typ == Prev3 {
		out[start+2*ssid.WireLen-1] |= 0b1000_0000
	}
	return out
}

// uKindControl maps a Kind back to the raw 8-bit control pattern used for
// U-frames (masked bits only; caller ORs in the P/F bit).
func uKindControl(kind Kind) (byte, error) {
	switch kind {
	case KindSABM:
		return 0b0010_1111, nil
	case KindSABME:
		return 0b0110_1111, nil
	case KindDISC:
		return 0b0100_0011, nil
	case KindDM:
		return 0b0000_1111, nil
	case KindUA:
		return 0b0110_0011, nil
	case KindFRMR:
		return 0b1000_0111, nil
	case KindUI:
		return 0b0000_0011, nil
	case KindXID:
		return 0b1010_1111, nil
	case KindTEST:
		return 0b1110_0011, nil
	default:
		return 0, fmt.Errorf("frame: %v is not a U-frame kind", kind)
	}
}

// BuildUFrame constructs a complete U-frame (address block + control byte +
// optional info) for the given reply context.
func BuildUFrame(ctx ReplyContext, kind Kind, typ CmdRes, pf bool, info []byte) ([]byte, error) {
	base, err := uKindControl(kind)
	if err != nil {
		return nil, err
	}
	out := pushAddresses(nil, ctx, typ)
	control := base
	if pf {
		control |= control8PF
	}
	out = append(out, control)
	out = append(out, info...)
	return out, nil
}

func sKindCode(kind Kind) (byte, error) {
	switch kind {
	case KindRR:
		return 0b0000_0000, nil
	case KindRNR:
		return 0b0000_0100, nil
	case KindREJ:
		return 0b0000_1000, nil
	case KindSREJ:
		return 0b0000_1100, nil
	default:
		return 0, fmt.Errorf("frame: %v is not an S-frame kind", kind)
	}
}

// BuildSFrame constructs a complete S-frame, using an 8- or 16-bit control
// field according to ctx.Modulo.
func BuildSFrame(ctx ReplyContext, kind Kind, typ CmdRes, pf bool, nr uint8) ([]byte, error) {
	code, err := sKindCode(kind)
	if err != nil {
		return nil, err
	}
	out := pushAddresses(nil, ctx, typ)

	if ctx.Modulo == 128 {
		control := uint16(code) | 0b01 // bit0=1 (S/U marker set for S-frame: bit0=1,bit1=0)
		control |= uint16(nr) << 9
		if pf {
			control |= control16PF
		}
		out = append(out, byte(control), byte(control>>8))
	} else {
		control := code | 0b01
		control |= nr << 5
		if pf {
			control |= control8PF
		}
		out = append(out, control)
	}
	return out, nil
}

// BuildIFrame constructs a complete I-frame, using an 8- or 16-bit control
// field according to ctx.Modulo, with info prefixed by the pid byte.
func BuildIFrame(ctx ReplyContext, typ CmdRes, p bool, nr, ns uint8, pid PID, info []byte) []byte {
	out := pushAddresses(nil, ctx, typ)

	if ctx.Modulo == 128 {
		var control uint16 // bit0=0 marks I-frame
		control |= uint16(ns) << 1
		control |= uint16(nr) << 9
		if p {
			control |= control16PF
		}
		out = append(out, byte(control), byte(control>>8))
	} else {
		var control uint8
		control |= ns << 1
		control |= nr << 5
		if p {
			control |= control8PF
		}
		out = append(out, control)
	}

	out = append(out, byte(pid))
	out = append(out, info...)
	return out
}
