package logger

import "time"

// Field keys used across the engine.
const (
	FieldComponent = "component"
	FieldAuthority = "authority"
	FieldConnID    = "conn_id"
	FieldPhase     = "phase"
	FieldState     = "state"
	FieldMethod    = "method"
	FieldURL       = "url"
	FieldStatus    = "status"
	FieldReason    = "reason"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Fields builds a field map from alternating key-value pairs.
//
//	log.Debug("connection opened", logger.Fields(logger.FieldAuthority, a, logger.FieldConnID, id))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		"operation": op,
		FieldError:  err.Error(),
	}
}

// Duration converts d to the millisecond value logged under FieldDuration.
func Duration(d time.Duration) int64 {
	return d.Milliseconds()
}
