package game

import "errors"

var (
	// ErrMalformedEnvelope is returned by Decode; the envelope is dropped with no state change.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	ErrActionNotPermitted = errors.New("action not permitted")
	ErrInvalidTeamSize    = errors.New("invalid team size")
	ErrAlreadySubmitted   = errors.New("already submitted")

	ErrNotConnected = errors.New("not connected")
)

// RejectCode maps a local rejection to a stable machine-readable code.
func RejectCode(err error) string {
	switch {
	case errors.Is(err, ErrActionNotPermitted):
		return "action_not_permitted"
	case errors.Is(err, ErrInvalidTeamSize):
		return "invalid_team_size"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrMalformedEnvelope):
		return "malformed_envelope"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	}
	return ""
}
