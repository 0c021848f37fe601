package config

import (
	"fmt"
	"reflect"

	"github.com/bitrise-io/go-utils/v2/log"
)

const unset = "<unset>"

// Print logs the fields of a parsed config struct. Secrets are masked and empty values shown as <unset>.
func Print(logger log.Logger, config interface{}) {
	v := reflect.ValueOf(config)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	logger.Infof("%s:", t.Name())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("env"); ok {
			name, _ = parseTag(tag)
		}

		value := valueString(v.Field(i))
		if value == "" || v.Field(i).IsZero() {
			value = unset
		}
		logger.Printf("- %s: %s", name, value)
	}
}

func valueString(v reflect.Value) string {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}
