package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// sqlite has no native timestamp or UUID type; every BaseModel-adjacent
// column is stored as RFC3339 text / canonical UUID text respectively.

func nowUTC() time.Time {
	return time.Now().UTC()
}

func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTimeStr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return timeStr(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullUUIDStr(id *uuid.UUID) any {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id.String()
}

func parseNullUUID(s sql.NullString) *uuid.UUID {
	if !s.Valid || s.String == "" {
		return nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil
	}
	return &id
}

func jsonStringSlice(arr []string) string {
	if arr == nil {
		arr = []string{}
	}
	data, _ := json.Marshal(arr)
	return string(data)
}

func scanStringSlice(data string, dest *[]string) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), dest)
}

func jsonStringMap(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func scanStringMap(data string, dest *map[string]string) {
	if *dest == nil {
		*dest = map[string]string{}
	}
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), dest)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
