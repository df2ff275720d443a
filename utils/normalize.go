package utils

import (
	"reflect"
	"strings"
)

var stringSlice = reflect.TypeOf([]string(nil))

// Normalize cleans a pointer-to-struct input in place: strings are trimmed, amounts
// are rounded to cents and string lists lose their blank entries. Nil pointers stay
// nil so a partial update still tells "unset" from "empty".
func Normalize(dto any) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return
	}
	s := v.Elem()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			continue
		}
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Float64:
			f.SetFloat(Round2(f.Float()))
		case reflect.Slice:
			if f.Type() == stringSlice {
				f.Set(reflect.ValueOf(compactStrings(f.Interface().([]string))))
			}
		}
	}
}

func compactStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
