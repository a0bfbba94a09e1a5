package job

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Record is the durable state of one submitted job
type Record struct {
	ID           string     `db:"id"`
	Worker       string     `db:"worker"`
	Args         JSON       `db:"args"`
	BrokerTaskID string     `db:"task_id"`
	Status       int        `db:"status"`
	RetryTimes   int        `db:"retry_times"`
	Result       JSON       `db:"result"`
	CreateTime   time.Time  `db:"create_time"`
	UpdateTime   time.Time  `db:"update_time"`
	FinishTime   *time.Time `db:"finish_time"`
}

// IsTerminal reports whether the record reached the end of its work chain
func (r *Record) IsTerminal() bool {
	return IsTerminal(r.Status)
}

// JSON is a raw JSON column value. A nil JSON maps to SQL NULL.
type JSON []byte

// Value implements driver.Valuer. The value is sent as text: lib/pq would
// encode a []byte parameter as bytea, which jsonb rejects.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("cannot scan %T into job.JSON", src)
	}
	return nil
}

// MarshalJSON emits the raw value, or null when empty
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of the raw value
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// Raw returns the value as json.RawMessage
func (j JSON) Raw() json.RawMessage {
	return json.RawMessage(j)
}

// MarshalJSONValue encodes v into a JSON column value
func MarshalJSONValue(v any) (JSON, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return JSON(raw), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json value: %w", err)
	}
	return JSON(data), nil
}
