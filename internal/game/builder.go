package game

// BuildEnvelope attaches the session identity to an action. It performs no
// validation; callers run Validate first.
func BuildEnvelope(sess SessionContext, a Action) Outbound {
	return Outbound{
		Message:    a.ActionType(),
		UserCookie: sess.Credential(),
		GameID:     sess.GameID(),
		Payload:    a,
	}
}
