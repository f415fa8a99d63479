package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// Callback payloads are flat strings because the transport carries them
// as opaque data with a small size cap. Layout: pg|<user>|<token>|<dir>.

const (
	payloadPrefix = "pg"
	payloadSep    = "|"

	dirNext = "n"
	dirPrev = "p"
)

// ErrBadPayload marks callback data this package did not mint.
var ErrBadPayload = errors.New("pagination: malformed callback payload")

// Payload is a decoded navigation callback.
type Payload struct {
	UserID    string
	Token     string
	Direction Direction
}

// EncodeCallback builds the callback data for one navigation control.
func EncodeCallback(userID, token string, dir Direction) string {
	d := dirNext
	if dir == Prev {
		d = dirPrev
	}
	return strings.Join([]string{payloadPrefix, userID, token, d}, payloadSep)
}

// DecodeCallback parses callback data produced by EncodeCallback.
func DecodeCallback(data string) (Payload, error) {
	parts := strings.Split(data, payloadSep)
	if len(parts) != 4 || parts[0] != payloadPrefix {
		return Payload{}, ErrBadPayload
	}

	var dir Direction
	switch parts[3] {
	case dirNext:
		dir = Next
	case dirPrev:
		dir = Prev
	default:
		return Payload{}, fmt.Errorf("%w: direction %q", ErrBadPayload, parts[3])
	}

	return Payload{UserID: parts[1], Token: parts[2], Direction: dir}, nil
}
