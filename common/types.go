package common

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// DurationParams selects a session length. DurationMs wins when present and
// clamps negative values to zero; otherwise Minutes and Seconds are clamped
// like the custom inputs.
type DurationParams struct {
	DurationMs *int64 `json:"durationMs,omitempty"`
	Minutes    *int  `json:"minutes,omitempty"`
	Seconds    *int  `json:"seconds,omitempty"`
}

// Empty reports whether no duration was given.
func (p *DurationParams) Empty() bool {
	return p == nil || (p.DurationMs == nil && p.Minutes == nil && p.Seconds == nil)
}

// StatusResult describes the timer.
type StatusResult struct {
	State       string  `json:"state"`
	DurationMs  int64   `json:"durationMs"`
	RemainingMs int64   `json:"remainingMs"`
	SelectedMs  int64   `json:"selectedMs"`
	Text        string  `json:"text"`
	Fraction    float64 `json:"fraction"`
	Degrees     int     `json:"degrees"`
	// Target is the RFC 3339 deadline of a running session.
	Target        string `json:"target,omitempty"`
	AudioUnlocked bool   `json:"audioUnlocked"`
	Hint          string `json:"hint"`
}

// AudioResult is the response for audio.unlock and audio.testTone.
type AudioResult struct {
	Unlocked bool   `json:"unlocked"`
	Played   bool   `json:"played,omitempty"`
	Hint     string `json:"hint"`
}

// TickNotification is pushed whenever the displayed countdown changes.
type TickNotification struct {
	State       string  `json:"state"`
	RemainingMs int64   `json:"remainingMs"`
	TotalMs     int64   `json:"totalMs"`
	Text        string  `json:"text"`
	Fraction    float64 `json:"fraction"`
	Degrees     int     `json:"degrees"`
}

// CompleteNotification is pushed once per finished session.
type CompleteNotification struct {
	DurationMs int64  `json:"durationMs"`
	Chimed     bool   `json:"chimed"`
	At         string `json:"at"`
}
