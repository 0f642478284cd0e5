package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Job actions recognized by the dispatcher.
const (
	ActionLoad          = "load"
	ActionFS            = "FS"
	ActionLoadLanguage  = "loadLanguage"
	ActionInitialize    = "initialize"
	ActionSetParameters = "setParameters"
	ActionRecognize     = "recognize"
	ActionGetPDF        = "getPDF"
	ActionDetect        = "detect"
	ActionTerminate     = "terminate"
)

// KnownAction reports whether the action has a registered handler.
func KnownAction(action string) bool {
	switch action {
	case ActionLoad, ActionFS, ActionLoadLanguage, ActionInitialize,
		ActionSetParameters, ActionRecognize, ActionGetPDF, ActionDetect,
		ActionTerminate:
		return true
	}
	return false
}

// Response status tags.
const (
	StatusResolve  = "resolve"
	StatusReject   = "reject"
	StatusProgress = "progress"
)

// Journal status constants for persisted job records.
const (
	JobPending  = "pending"
	JobRunning  = "running"
	JobResolved = "resolved"
	JobRejected = "rejected"
)

// Job is one unit of work submitted to a worker. The payload shape depends
// on the action; it stays raw until the matching handler decodes it.
type Job struct {
	WorkerID string          `json:"workerId"`
	JobID    string          `json:"jobId"`
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Response is the single outbound message shape. For progress events Data is
// a Progress value; for rejections Data carries the stringified error.
type Response struct {
	WorkerID string `json:"workerId"`
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Data     any    `json:"data,omitempty"`
}

// Progress is the data payload of a progress response.
type Progress struct {
	WorkerID string  `json:"workerId"`
	JobID    string  `json:"jobId,omitempty"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// JobRecord is the persisted journal entry for a dispatched job.
type JobRecord struct {
	ID         string     `json:"id"`
	WorkerID   string     `json:"worker_id"`
	Action     string     `json:"action"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProgressRecord is one persisted progress event of a job.
type ProgressRecord struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Seq       int       `json:"seq"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
}

// LanguageSpec identifies one trained-data resource. It is either a plain
// language code resolved through cache/network/bundled fallback, or an inline
// entry carrying the trained-data bytes directly.
type LanguageSpec struct {
	Code string `json:"code"`
	Data []byte `json:"data,omitempty"`
}

// Inline reports whether the entry carries its trained-data bytes inline.
func (l LanguageSpec) Inline() bool { return len(l.Data) > 0 }

// UnmarshalJSON accepts either a bare code string or a {code, data} object
// with base64-encoded data.
func (l *LanguageSpec) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &l.Code)
	}
	type alias LanguageSpec
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*l = LanguageSpec(a)
	return nil
}

// LanguageList is a set of language specs. On the wire it is an array of
// specs, a single spec, or a combined code string such as "eng+deu".
type LanguageList []LanguageSpec

// UnmarshalJSON decodes the three accepted wire shapes.
func (ll *LanguageList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		var specs []LanguageSpec
		if err := json.Unmarshal(b, &specs); err != nil {
			return err
		}
		*ll = specs
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var joined string
		if err := json.Unmarshal(b, &joined); err != nil {
			return err
		}
		var specs []LanguageSpec
		for _, code := range strings.Split(joined, "+") {
			if code == "" {
				continue
			}
			specs = append(specs, LanguageSpec{Code: code})
		}
		*ll = specs
		return nil
	}
	var spec LanguageSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return err
	}
	*ll = LanguageList{spec}
	return nil
}

// Joined returns the language codes combined with "+", the form the engine
// expects at recognizer construction.
func (ll LanguageList) Joined() string {
	codes := make([]string, len(ll))
	for i, spec := range ll {
		codes[i] = spec.Code
	}
	return strings.Join(codes, "+")
}

// InitConfig is the recognizer construction config: either verbatim config
// file text or a structured key/value mapping serialized by the worker.
type InitConfig struct {
	Text   string
	Values map[string]any
}

// UnmarshalJSON accepts a string (verbatim config text) or an object.
func (c *InitConfig) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &c.Text)
	}
	return json.Unmarshal(b, &c.Values)
}

// Empty reports whether no config was supplied.
func (c *InitConfig) Empty() bool {
	return c == nil || (c.Text == "" && len(c.Values) == 0)
}

// Rectangle constrains recognition to a sub-region of the installed image.
type Rectangle struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
