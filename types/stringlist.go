package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringList is an ordered list of ids stored as a JSON array column, it implements driver.Valuer and sql.Scanner.
type StringList []string

// Value return json value, implement driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	ba, err := l.MarshalJSON()
	return string(ba), err
}

// Scan scan value into StringList, implements sql.Scanner interface
func (l *StringList) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON array value:", val))
	}
	t := []string{}
	err := json.Unmarshal(ba, &t)
	*l = StringList(t)
	return err
}

// MarshalJSON never writes null, an empty list is written as []
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// GormDataType gorm common data type
func (StringList) GormDataType() string {
	return "stringlist"
}

// GormDBDataType gorm db data type
func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

func (l StringList) Contains(s string) bool {
	for _, e := range l {
		if e == s {
			return true
		}
	}
	return false
}

// AddUnique appends s if it is not in the list yet and reports whether it did.
func (l *StringList) AddUnique(s string) bool {
	if l.Contains(s) {
		return false
	}
	*l = append(*l, s)
	return true
}

// Remove drops every occurrence of s and reports whether anything was removed.
func (l *StringList) Remove(s string) bool {
	keep := (*l)[:0]
	removed := false
	for _, e := range *l {
		if e == s {
			removed = true
			continue
		}
		keep = append(keep, e)
	}
	*l = keep
	return removed
}
