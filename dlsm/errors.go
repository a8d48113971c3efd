package dlsm

import "errors"

// Errors returned directly by the socket-layer API, distinct from the
// lettered DLError taxonomy surfaced through OnError callbacks.
var (
	ErrNoConnections = errors.New("dlsm: connection table exhausted")
	ErrNoSockets     = errors.New("dlsm: socket table exhausted")
)

// ErrorCode is one of the lettered data-link error conditions a Connection
// can surface via its socket's OnError callback.
type ErrorCode byte

const (
	ErrA ErrorCode = 'A' // F=1 received but P=1 not outstanding.
	ErrB ErrorCode = 'B' // Unexpected DM with F=1 in CONNECTED/TIMER_RECOVERY/AWAITING_CONNECT_2_2.
	ErrC ErrorCode = 'C' // Unexpected UA in CONNECTED/TIMER_RECOVERY/AWAITING_CONNECT_2_2.
	ErrD ErrorCode = 'D' // UA received without F=1 when SABM or DISC was sent with P=1.
	ErrE ErrorCode = 'E' // DM received in CONNECTED/TIMER_RECOVERY/AWAITING_CONNECT_2_2.
	ErrF ErrorCode = 'F' // Data link reset: SABM/SABME received while connected.
	ErrG ErrorCode = 'G' // Connection timed out while establishing.
	ErrH ErrorCode = 'H' // Connection timed out while disconnecting.
	ErrI ErrorCode = 'I' // N2 timeouts: unacknowledged data.
	ErrJ ErrorCode = 'J' // N(r) sequence error.
	ErrK ErrorCode = 'K' // Unexpected frame received.
	ErrL ErrorCode = 'L' // Control field invalid or not implemented.
	ErrM ErrorCode = 'M' // Information field received in a U- or S-type frame.
	ErrN ErrorCode = 'N' // Length of frame incorrect for frame type.
	ErrO ErrorCode = 'O' // I frame exceeded maximum allowed length.
	ErrP ErrorCode = 'P' // N(s) out of the window.
	ErrQ ErrorCode = 'Q' // UI response received, or UI command with P=1 received.
	ErrR ErrorCode = 'R' // UI frame exceeded maximum allowed length.
	ErrS ErrorCode = 'S' // I response received.
	ErrT ErrorCode = 'T' // N2 timeouts: no response to enquiry.
	ErrU ErrorCode = 'U' // N2 timeouts: extended peer busy.
	ErrV ErrorCode = 'V' // No DL machines available to establish connection.
)

var errMessages = map[ErrorCode]string{
	ErrA: "F=1 received but P=1 not outstanding",
	ErrB: "unexpected DM with F=1",
	ErrC: "unexpected UA",
	ErrD: "UA received without F=1 when SABM or DISC was sent with P=1",
	ErrE: "DM received while connected",
	ErrF: "data link reset",
	ErrG: "connection timed out while establishing",
	ErrH: "connection timed out while disconnecting",
	ErrI: "N2 timeouts: unacknowledged data",
	ErrJ: "N(r) sequence error",
	ErrK: "unexpected frame received",
	ErrL: "control field invalid or not implemented",
	ErrM: "information field received in a U- or S-type frame",
	ErrN: "length of frame incorrect for frame type",
	ErrO: "I frame exceeded maximum allowed length",
	ErrP: "N(s) out of the window",
	ErrQ: "UI response received, or UI command with P=1 received",
	ErrR: "UI frame exceeded maximum allowed length",
	ErrS: "I response received",
	ErrT: "N2 timeouts: no response to enquiry",
	ErrU: "N2 timeouts: extended peer busy",
	ErrV: "no DL machines available to establish connection",
}

// DLError is the error type handed to a Socket's OnError callback.
type DLError struct {
	Code ErrorCode
}

func (e DLError) Error() string {
	if msg, ok := errMessages[e.Code]; ok {
		return msg
	}
	return "unknown data-link error"
}
