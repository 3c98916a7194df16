package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// FaceEncoding is a fixed-length face descriptor (128 values for the dlib
// detector). It is stored as a tagged payload: {"values":[...]}.
type FaceEncoding []float64

type encodingPayload struct {
	Values []float64 `json:"values"`
}

// Value implements driver.Valuer. A nil encoding is stored as NULL.
func (e FaceEncoding) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(encodingPayload{Values: e})
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. Bare JSON arrays are accepted as well.
func (e *FaceEncoding) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("face encoding: unsupported column type %T", src)
	}

	if len(raw) == 0 {
		*e = nil
		return nil
	}

	if raw[0] == '[' {
		var values []float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return fmt.Errorf("face encoding: %w", err)
		}
		*e = values
		return nil
	}

	var payload encodingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("face encoding: %w", err)
	}
	*e = payload.Values
	return nil
}

// GormDataType keeps the column portable between MySQL and SQLite.
func (FaceEncoding) GormDataType() string {
	return "json"
}

// Dim returns the encoding dimensionality.
func (e FaceEncoding) Dim() int {
	return len(e)
}
