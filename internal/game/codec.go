package game

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses one inbound envelope. It fails closed: invalid JSON, a
// missing discriminator or a payload that does not fit its variant yields
// ErrMalformedEnvelope.
func Decode(raw []byte) (Inbound, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if h.Message == "" {
		return nil, fmt.Errorf("%w: missing message field", ErrMalformedEnvelope)
	}

	var in Inbound
	switch h.Message {
	case MsgConnectAck:
		in = &ConnectAck{}
	case MsgRoster:
		in = &RosterUpdate{}
	case MsgGameStarted:
		in = &GameStarted{}
	case MsgRoleResult:
		in = &RoleResult{}
	case MsgMissionPrep:
		in = &MissionPreparation{}
	case MsgLeaderResult:
		in = &LeaderResult{}
	case MsgTeamApproval:
		in = &TeamApprovalRequest{}
	case MsgVoteBroadcast:
		in = &VoteBroadcast{}
	case MsgMissionStarted:
		in = &MissionStarted{}
	case MsgOnMissionResult:
		in = &OnMissionResult{}
	case MsgMissionList:
		in = &MissionListUpdate{}
	case MsgGameOver:
		in = &GameOver{}
	case MsgShowText:
		in = &ShowText{}
	case MsgGamePause:
		in = &GamePause{}
	case MsgGameResume:
		in = &GameResume{}
	default:
		return &Unknown{Header: h}, nil
	}

	if err := json.Unmarshal(raw, in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, h.Message, err)
	}
	return in, nil
}

// Encode flattens the payload fields next to message/userCookie/gameId.
func Encode(o Outbound) ([]byte, error) {
	head, err := json.Marshal(struct {
		Message    string `json:"message"`
		UserCookie string `json:"userCookie"`
		GameID     string `json:"gameId"`
	}{o.Message, o.UserCookie, o.GameID})
	if err != nil {
		return nil, err
	}
	if o.Payload == nil {
		return head, nil
	}

	body, err := json.Marshal(o.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", o.Message, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", o.Message)
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
