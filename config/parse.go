package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

var (
	// ErrNotStructPtr indicates a type is not a pointer to a struct.
	ErrNotStructPtr = errors.New("must be a pointer to a struct")
	// ErrRequired indicates a required variable is not present.
	ErrRequired = errors.New("required variable is not present")
	// ErrInvalidOption indicates a value is not in the value options.
	ErrInvalidOption = errors.New("value is not in value options")
	// ErrOutOfRange indicates a numeric value is outside of the allowed range.
	ErrOutOfRange = errors.New("value is out of range")
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	byteSizeType = reflect.TypeOf(ByteSize(0))
)

// EnvGetter ...
type EnvGetter interface {
	Get(key string) string
}

// Secret variables are not shown in the printed output.
type Secret string

const secret = "*****"

// String implements fmt.Stringer.String.
// When a Secret is printed, it's masking the underlying string with asterisks.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secret
}

// ByteSize is a size in bytes parsed from human readable values such as 256KiB or 8MB.
type ByteSize int64

// String implements fmt.Stringer.String.
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// ParseByteSize parses a human readable size. Plain numbers are bytes.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	return ByteSize(n), nil
}

// InputParser fills a struct from environment variables named by `env` struct tags.
type InputParser interface {
	Parse(input interface{}) error
}

type envInputParser struct {
	envGetter EnvGetter
}

// NewInputParser returns an InputParser reading variables through envGetter.
func NewInputParser(envGetter EnvGetter) InputParser {
	return envInputParser{envGetter: envGetter}
}

// Parse ...
func (p envInputParser) Parse(input interface{}) error {
	return parse(input, p.envGetter)
}

// parse populates a struct with the values of the environment variables named in the `env` tags.
// Fields whose variable is empty keep their current value, so defaults can be set up front.
func parse(input interface{}, getter EnvGetter) error {
	rv := reflect.ValueOf(input)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrNotStructPtr
	}
	v := rv.Elem()
	if v.Kind() != reflect.Struct {
		return ErrNotStructPtr
	}

	var errs []error
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, ok := field.Tag.Lookup("env")
		if !ok || !field.IsExported() {
			continue
		}

		key, constraint := parseTag(tag)
		value := getter.Get(key)
		if value == "" {
			if constraint == "required" {
				errs = append(errs, fmt.Errorf("%s: %w", key, ErrRequired))
			}
			continue
		}

		if err := setField(v.Field(i), value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}

		if err := validate(v.Field(i), value, constraint); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func parseTag(tag string) (string, string) {
	key, constraint, _ := strings.Cut(tag, ",")
	return strings.TrimSpace(key), strings.TrimSpace(constraint)
}

func setField(field reflect.Value, value string) error {
	switch field.Type() {
	case durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	case byteSizeType:
		size, err := ParseByteSize(value)
		if err != nil {
			return fmt.Errorf("parse size: %w", err)
		}
		field.SetInt(int64(size))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		field.Set(reflect.ValueOf(strings.Split(value, "|")))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse bool: %w", err)
	}
	return b, nil
}

func validate(field reflect.Value, value, constraint string) error {
	switch {
	case constraint == "", constraint == "required":
		return nil
	case strings.HasPrefix(constraint, "opt[") && strings.HasSuffix(constraint, "]"):
		for _, opt := range parseOptions(constraint[len("opt[") : len(constraint)-1]) {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %q", ErrInvalidOption, value)
	case strings.HasPrefix(constraint, "range[") && strings.HasSuffix(constraint, "]"):
		return validateRange(field, constraint[len("range["):len(constraint)-1])
	default:
		return fmt.Errorf("unknown constraint %q", constraint)
	}
}

// parseOptions splits a comma separated option list. Options containing commas are quoted with single quotes.
func parseOptions(s string) []string {
	var opts []string
	var current strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			opts = append(opts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(opts, current.String())
}

func validateRange(field reflect.Value, bounds string) error {
	minStr, maxStr, ok := strings.Cut(bounds, "..")
	if !ok {
		return fmt.Errorf("invalid range %q", bounds)
	}
	lo, err := strconv.ParseInt(minStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid range minimum %q", minStr)
	}
	hi, err := strconv.ParseInt(maxStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid range maximum %q", maxStr)
	}

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return fmt.Errorf("range constraint on non-numeric type %s", field.Type())
	}

	if n := field.Int(); n < lo || n > hi {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, n, lo, hi)
	}
	return nil
}
