package core

// ComponentScores holds the independent convergence component scores for one
// turn, each normalized to [0,1].
type ComponentScores struct {
	Content     float64 `json:"content"`
	Structure   float64 `json:"structure"`
	Sentences   float64 `json:"sentences"`
	Length      float64 `json:"length"`
	Punctuation float64 `json:"punctuation"`
}

// Turn is one completed exchange: agent A speaks, agent B replies, and the
// pair is scored. Turns are immutable once both messages are recorded; the
// index of turn i equals the number of previously completed turns.
type Turn struct {
	Index    int             `json:"index"`
	MessageA Message         `json:"message_a"`
	MessageB Message         `json:"message_b"`
	Scores   ComponentScores `json:"scores"`
	Combined float64         `json:"combined"`
	Trend    float64         `json:"trend"`
	CostA    float64         `json:"cost_a"`
	CostB    float64         `json:"cost_b"`
	UsageA   TokenUsage      `json:"usage_a"`
	UsageB   TokenUsage      `json:"usage_b"`
}
