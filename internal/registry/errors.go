package registry

import (
	"errors"
	"fmt"
)

// ConfigErrorCode categorizes registration failures.
type ConfigErrorCode string

const (
	ErrCodeDuplicateSchema      ConfigErrorCode = "DUPLICATE_SCHEMA"
	ErrCodeUnknownSchema        ConfigErrorCode = "UNKNOWN_SCHEMA"
	ErrCodeUnknownField         ConfigErrorCode = "UNKNOWN_FIELD"
	ErrCodeInvalidSchema        ConfigErrorCode = "INVALID_SCHEMA"
	ErrCodeInvalidRule          ConfigErrorCode = "INVALID_RULE"
	ErrCodeInvalidPath          ConfigErrorCode = "INVALID_PATH"
	ErrCodeDuplicateRule        ConfigErrorCode = "DUPLICATE_RULE"
	ErrCodeDuplicateAugment     ConfigErrorCode = "DUPLICATE_AUGMENTATION"
	ErrCodeContradictoryFlags   ConfigErrorCode = "CONTRADICTORY_FLAGS"
	ErrCodeUnknownAction        ConfigErrorCode = "UNKNOWN_ACTION"
	ErrCodeSealed               ConfigErrorCode = "SEALED"
	ErrCodeInvalidEnumSubset    ConfigErrorCode = "INVALID_ENUM_SUBSET"
	ErrCodeInvalidAugmentSelect ConfigErrorCode = "INVALID_SELECT"
	ErrCodeDepthLimit           ConfigErrorCode = "DEPTH_LIMIT"
)

// ConfigError reports a schema or rule that cannot be registered.
// Subject names the offending schema or rule id.
type ConfigError struct {
	Code    ConfigErrorCode
	Subject string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Subject, e.Message)
}

func configErr(code ConfigErrorCode, subject, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a ConfigError with the given code.
// An empty code matches any ConfigError.
func IsConfigError(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if !errors.As(err, &ce) {
		return false
	}
	return code == "" || ce.Code == code
}
