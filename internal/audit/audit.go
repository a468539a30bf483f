package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one administrative action in the trail. The trail is append-only
// and strictly best effort: a failed write never rolls back the operation it
// describes.
type Entry struct {
	ID         string  `json:"id" gorm:"primaryKey"`
	ActorEmail string  `json:"actor_email" gorm:"index"`
	Action     string  `json:"action" gorm:"index"`
	TargetID   string  `json:"target_id" gorm:"index"`
	Details    Details `json:"details" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (Entry) TableName() string {
	return "audit_log"
}

// Details is a free-form JSON payload column.
type Details map[string]interface{}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Details) Scan(value interface{}) error {
	if value == nil {
		*d = Details{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for audit details: %T", value)
	}

	return json.Unmarshal(raw, d)
}
