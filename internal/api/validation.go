package api

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var memberCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,10}$`)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the custom binding tags on gin's validator
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected binding validator %T", binding.Validator.Engine())
			return
		}

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		if err := v.RegisterValidation("membercode", validateMemberCode); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("ranks", validateRanks)
	})
	return registerErr
}

// ValidMemberCode reports whether code is 1-10 letters, digits, '_' or '-'
func ValidMemberCode(code string) bool {
	return memberCodePattern.MatchString(code)
}

func validateMemberCode(fl validator.FieldLevel) bool {
	field := fl.Field()
	return field.Kind() == reflect.String && memberCodePattern.MatchString(field.String())
}

// validateRanks accepts a map of member code to rank where every rank is at least 1
func validateRanks(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Map {
		return false
	}
	iter := field.MapRange()
	for iter.Next() {
		if iter.Key().Kind() != reflect.String || !memberCodePattern.MatchString(iter.Key().String()) {
			return false
		}
		switch iter.Value().Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if iter.Value().Int() < 1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// validateMatrix requires the competency matrix to be absent, null or a JSON object
func validateMatrix(raw json.RawMessage) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.NewValidationErrorWithMap("Request validation failed", map[string]string{
			"competencyMatrix": "must be a JSON object",
		})
	}
	return nil
}
