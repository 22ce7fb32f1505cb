// Package config loads layered configuration: a YAML file first, then
// environment variables named by `env` struct tags.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load decodes the YAML file at path into dst and then applies environment
// overrides. A missing file leaves dst untouched; an empty path skips the file.
func Load(path string, dst any) error {
	if path != "" {
		//nolint:gosec // G304: path is supplied by the operator.
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(data, dst); err != nil {
				return errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	return LoadFromEnv(dst)
}

// LoadFromEnv sets every field carrying an `env` tag whose variable is set
// and non-empty. Nested structs are walked recursively.
func LoadFromEnv(dst any) error {
	return loadFromEnv(reflect.ValueOf(dst))
}

func loadFromEnv(v reflect.Value) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		value := os.Getenv(envTag)
		if value == "" {
			continue
		}

		if err := setField(field, value); err != nil {
			return errors.Wrapf(err, "%s (%s)", fieldType.Name, envTag)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return errors.Wrap(err, "invalid duration")
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid integer")
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid unsigned integer")
		}
		field.SetUint(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrap(err, "invalid boolean")
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return errors.Newf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return errors.Newf("unsupported type %s", field.Kind())
	}
	return nil
}
