package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap is a free-form key→value map persisted as JSON text, used
// for RiskAlert.ContributingFactors (price_delta, new_release_mentions,
// sentiment_score, and any future factor) without a schema migration.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("JSONMap: unsupported scan type")
	}
	if len(bytes) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}
