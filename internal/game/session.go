package game

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SessionContext is the identity attached to every outbound envelope.
// It is created once at connect time and is read-only afterwards.
type SessionContext struct {
	credential string
	gameID     string
}

func NewSessionContext(credential, gameID string) (SessionContext, error) {
	credential = strings.TrimSpace(credential)
	gameID = strings.TrimSpace(gameID)
	if credential == "" {
		return SessionContext{}, errors.New("session: empty credential")
	}
	if gameID == "" {
		return SessionContext{}, errors.New("session: empty game id")
	}
	return SessionContext{credential: credential, gameID: gameID}, nil
}

func (s SessionContext) Credential() string { return s.credential }
func (s SessionContext) GameID() string     { return s.gameID }

// Key identifies this session in snapshot storage without exposing the
// credential.
func (s SessionContext) Key() string {
	sum := blake2b.Sum256([]byte(s.credential))
	return fmt.Sprintf("session:%s:%s", s.gameID, hex.EncodeToString(sum[:12]))
}
