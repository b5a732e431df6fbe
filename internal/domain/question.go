package domain

// Question is the prompt the host asks. Only one is current at a time.
type Question struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// BuzzResponse is a player's request to answer the current question.
// Timestamp is Unix epoch milliseconds read from the buzzer's own clock, so
// the ordering it produces across peers is only as good as their clock sync.
type BuzzResponse struct {
	PlayerID  string  `json:"playerId"`
	Timestamp float64 `json:"timestamp"`
}
