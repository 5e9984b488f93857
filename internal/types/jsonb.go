package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure the JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*JSONMap)(nil)
	_ driver.Valuer = JSONMap(nil)
	_ sql.Scanner   = (*OrderEmailPayload)(nil)
	_ driver.Valuer = OrderEmailPayload{}
)

// JSONMap is a free-form JSONB document (batch meta, webhook payloads,
// suppression metadata).
type JSONMap map[string]any

// scanJSONB is a generic helper that scans a JSONB database value into a Go
// pointer. It handles nil values, []byte, and string representations.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (p *OrderEmailPayload) Scan(value any) error {
	return scanJSONB(p, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (p OrderEmailPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}
