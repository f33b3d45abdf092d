package session

import (
	"encoding/json"
	"time"
)

// SchemaVersion is stamped into every persisted record. Older records
// without the field decode as 0 and are upgraded on the next write.
const SchemaVersion = 1

// DefaultIntervalMS is used whenever interval_ms is unset or invalid.
const DefaultIntervalMS int64 = 60_000

// Count is the unread summary fetched from the remote endpoint.
type Count struct {
	RoomsCount int `json:"rooms_count"`
}

// Options holds everything an operator can configure per session.
type Options struct {
	AuthToken    string `json:"auth_token,omitempty"`
	Referer      string `json:"referer,omitempty"`
	IntervalMS   int64  `json:"interval_ms,omitempty"`
	Schedule     string `json:"schedule,omitempty"`
	AllowZero    bool   `json:"allow_zero,omitempty"`
	Polling      bool   `json:"polling,omitempty"`
	ResumeOnBoot bool   `json:"resume_on_boot,omitempty"`
}

// State is the full persisted record for one session.
type State struct {
	Version   int     `json:"version"`
	LastCount Count   `json:"last_count"`
	Options   Options `json:"options"`
}

func NewState() State {
	return State{Version: SchemaVersion}
}

// Interval returns the effective poll delay.
func (o Options) Interval() time.Duration {
	ms := o.IntervalMS
	if ms <= 0 {
		ms = DefaultIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Configured reports whether the session has enough to reach the remote
// endpoint.
func (o Options) Configured() bool {
	return o.AuthToken != "" && o.Referer != ""
}

// Decode parses a persisted record. Unknown fields are tolerated so newer
// writers don't break older readers.
func Decode(blob []byte) (State, error) {
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		return State{}, err
	}
	if st.Version == 0 {
		st.Version = SchemaVersion
	}
	return st, nil
}

func (s State) Encode() ([]byte, error) {
	s.Version = SchemaVersion
	return json.Marshal(s)
}
