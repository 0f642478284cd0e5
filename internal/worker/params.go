package worker

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/evantohost/tesseract/internal/engine"
)

// Library-reserved parameter keys: legacy boolean flags consumed only by the
// output-specification merge. They are stored in the parameter snapshot but
// never forwarded to the engine. An enumerated set, not a name-prefix check,
// so the contract is auditable here.
const (
	paramCreateBox  = "tessjs_create_box"
	paramCreateHOCR = "tessjs_create_hocr"
	paramCreateOSD  = "tessjs_create_osd"
	paramCreateTSV  = "tessjs_create_tsv"
	paramCreateUNLV = "tessjs_create_unlv"
)

var reservedParams = map[string]bool{
	paramCreateBox:  true,
	paramCreateHOCR: true,
	paramCreateOSD:  true,
	paramCreateTSV:  true,
	paramCreateUNLV: true,
}

// defaultParams returns a fresh copy of the default parameter set applied on
// every initialize.
func defaultParams() map[string]string {
	return map[string]string{
		engine.VarPageSegMode: strconv.Itoa(int(engine.PSMSingleBlock)),
		paramCreateBox:        "0",
		paramCreateHOCR:       "0",
		paramCreateOSD:        "0",
		paramCreateTSV:        "0",
		paramCreateUNLV:       "0",
	}
}

// stringifyParam converts a JSON-decoded parameter value to the engine's
// string form. Booleans map to 1/0; integral floats lose the trailing ".0"
// JSON decoding would otherwise leave them with.
func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// forwardParams sends every non-reserved entry to the engine's variable
// setter, in key order for deterministic failure attribution.
func (s *Session) forwardParams(params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !reservedParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.api.SetVariable(k, params[k]); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// SetParameters forwards non-reserved keys to the engine and merges the full
// set (reserved keys included) into the tracked snapshot. It returns a copy
// of the merged snapshot.
func (s *Session) SetParameters(params map[string]any) (map[string]string, error) {
	if s.api == nil {
		return nil, ErrNotInitialized
	}

	converted := make(map[string]string, len(params))
	for k, v := range params {
		converted[k] = stringifyParam(v)
	}
	if err := s.forwardParams(converted); err != nil {
		return nil, err
	}
	for k, v := range converted {
		s.params[k] = v
	}

	snapshot := make(map[string]string, len(s.params))
	for k, v := range s.params {
		snapshot[k] = v
	}
	return snapshot, nil
}

// pushParams applies a transient override for one operation and returns the
// restore function. The restore re-applies the pre-override snapshot and must
// run on every exit path, including failure; restore errors are logged, never
// surfaced, because the guarded operation's outcome is already decided by
// then.
func (s *Session) pushParams(override map[string]string) (restore func(), err error) {
	saved := make(map[string]string, len(s.params))
	for k, v := range s.params {
		saved[k] = v
	}

	if err := s.forwardParams(override); err != nil {
		// A partial apply still mutated engine state; roll back before failing.
		if rerr := s.forwardParams(saved); rerr != nil {
			s.logger.Warn("rolling back partial override", "error", rerr)
		}
		return nil, err
	}
	for k, v := range override {
		s.params[k] = v
	}

	return func() {
		if err := s.forwardParams(saved); err != nil {
			s.logger.Warn("restoring parameter snapshot", "error", err)
		}
		s.params = saved
	}, nil
}
