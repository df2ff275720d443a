package utils

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ColumnUpdates turns the non-nil pointer fields of a patch struct into a column map
// for gorm's Updates. The json tag names the column. A field tagged patch:"nullable"
// whose value is the zero value is written as NULL, which lets clients clear a link by
// sending 0.
func ColumnUpdates(dto any) map[string]any {
	res := make(map[string]any)
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return res
	}
	s := v.Elem()
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := s.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		name := strings.Split(sf.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if sf.Tag.Get("patch") == "nullable" && fv.Elem().IsZero() {
			res[name] = nil
			continue
		}
		res[name] = fv.Elem().Interface()
	}
	return res
}

// ParseID parses a positive record id from a path or query value.
func ParseID(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 0)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

// ParseIDList parses "1,2,3". Blank items are skipped.
func ParseIDList(s string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
