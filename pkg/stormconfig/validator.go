package stormconfig

import (
	"fmt"
	"reflect"
)

// Validator checks a loaded settings value for internal consistency.
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc adapts a function to a Validator.
type ValidatorFunc func(config interface{}) error

func (f ValidatorFunc) Validate(config interface{}) error { return f(config) }

// Validate runs every validator against config, stopping at the first
// failure.
func Validate(config interface{}, validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(config); err != nil {
			return err
		}
	}
	return nil
}

// RangeValidator checks that a numeric field (by name) falls within
// [min, max] inclusive.
func RangeValidator(fieldName string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val := reflect.ValueOf(config)
		if val.Kind() == reflect.Ptr {
			val = val.Elem()
		}
		field := val.FieldByName(fieldName)
		if !field.IsValid() {
			return fmt.Errorf("stormconfig: field %s not found", fieldName)
		}

		var n float64
		switch field.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = float64(field.Int())
		case reflect.Float32, reflect.Float64:
			n = field.Float()
		default:
			return fmt.Errorf("stormconfig: field %s is not numeric", fieldName)
		}
		if n < min || n > max {
			return fmt.Errorf("stormconfig: %s = %v, want range [%v, %v]", fieldName, n, min, max)
		}
		return nil
	})
}

// OneOfValidator checks that a string field's value is one of allowed.
func OneOfValidator(fieldName string, allowed ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val := reflect.ValueOf(config)
		if val.Kind() == reflect.Ptr {
			val = val.Elem()
		}
		field := val.FieldByName(fieldName)
		if !field.IsValid() || field.Kind() != reflect.String {
			return fmt.Errorf("stormconfig: field %s not found or not a string", fieldName)
		}
		got := field.String()
		for _, a := range allowed {
			if a == got {
				return nil
			}
		}
		return fmt.Errorf("stormconfig: %s = %q, want one of %v", fieldName, got, allowed)
	})
}
