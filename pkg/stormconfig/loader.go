// Package stormconfig loads a Backend's Settings from a YAML or JSON file,
// with STORMSOCKET_-prefixed environment variable overrides layered on
// top. Adapted from the teacher's generic pkg/config package, narrowed to
// the one concrete config shape this module needs (FileSettings).
package stormconfig

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

// EnvPrefix is the environment variable prefix ApplyEnvOverrides (and so
// LoadWithEnv) uses when given an empty prefix, e.g.
// STORMSOCKET_NUMSENDTHREADS.
const EnvPrefix = "STORMSOCKET"

// Load reads path (YAML or JSON, detected by extension) into target.
func Load(path string, target interface{}) error {
	if strings.HasSuffix(path, ".json") {
		return LoadJSON(path, target)
	}
	return LoadYAML(path, target)
}

// LoadWithEnv loads path into target and then applies environment
// variable overrides under prefix.
func LoadWithEnv(path string, prefix string, target interface{}) error {
	if err := Load(path, target); err != nil {
		return fmt.Errorf("stormconfig: load file: %w", err)
	}
	if err := ApplyEnvOverrides(prefix, target); err != nil {
		return fmt.Errorf("stormconfig: apply env overrides: %w", err)
	}
	return nil
}

// ApplyEnvOverrides walks target's fields by reflection, setting any field
// for which PREFIX_FIELDNAME is set in the environment.
func ApplyEnvOverrides(prefix string, target interface{}) error {
	if prefix == "" {
		prefix = EnvPrefix
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("stormconfig: target must be a pointer to a struct")
	}
	return applyEnvToStruct(prefix, val.Elem())
}

func applyEnvToStruct(prefix string, val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !field.CanSet() {
			continue
		}

		envKey := strings.ToUpper(prefix + "_" + fieldType.Name)
		envKey = strings.ReplaceAll(envKey, "-", "_")

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(envKey, field); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("stormconfig: field %s from %s: %w", fieldType.Name, envKey, err)
		}
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var v int64
		if _, err := fmt.Sscanf(envValue, "%d", &v); err != nil {
			return fmt.Errorf("invalid integer %q", envValue)
		}
		field.SetInt(v)
	case reflect.Bool:
		field.SetBool(strings.EqualFold(envValue, "true") || envValue == "1")
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
