package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*DelegationCaveats)(nil)
	_ driver.Valuer = DelegationCaveats{}
)

// scanJSONB scans a JSONB database value into dest. It handles nil values,
// []byte, and string representations from different database drivers.
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
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Scan implements sql.Scanner for the delegations.caveats column.
func (c *DelegationCaveats) Scan(value any) error {
	return scanJSONB(c, value)
}

// Value implements driver.Valuer.
func (c DelegationCaveats) Value() (driver.Value, error) {
	return json.Marshal(c)
}
