package telemetry

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit writes one JSON line per pipeline event so a run can be
// reconstructed after the fact. A nil *Audit discards everything.
type Audit struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewAudit writes events to w.
func NewAudit(w io.Writer) *Audit {
	return &Audit{w: w, now: time.Now}
}

type auditEvent struct {
	Time   string         `json:"time"`
	RunID  string         `json:"run_id"`
	Stage  string         `json:"stage"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Event records one stage transition or measurement for a run.
func (a *Audit) Event(runID, stage string, fields map[string]any) {
	if a == nil || a.w == nil {
		return
	}
	line, err := json.Marshal(auditEvent{
		Time:   a.now().UTC().Format(time.RFC3339Nano),
		RunID:  runID,
		Stage:  stage,
		Fields: fields,
	})
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.w.Write(append(line, '\n'))
}
