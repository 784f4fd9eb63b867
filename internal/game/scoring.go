package game

// Score is the mission tally as shown next to the history table.
type Score struct {
	Successes int `json:"successes"`
	Fails     int `json:"fails"`
	Pending   int `json:"pending"`
}

func Tally(records []MissionRecord) Score {
	var s Score
	for _, r := range records {
		switch r.Result {
		case ResultSuccess:
			s.Successes++
		case ResultFail:
			s.Fails++
		default:
			s.Pending++
		}
	}
	return s
}

// Decided reports whether either side already holds three missions.
func (s Score) Decided() bool {
	return s.Successes >= 3 || s.Fails >= 3
}
