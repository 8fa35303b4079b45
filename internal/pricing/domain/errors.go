package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration 参数非法，模拟开始前即失败
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrNumericalOverflow 模拟价格出现 Inf/NaN，参数超出模型有效范围
	ErrNumericalOverflow = errors.New("numerical overflow")
)

// ConfigurationError 描述具体哪个参数非法
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap 使 errors.Is(err, ErrInvalidConfiguration) 成立
func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

func invalid(field string, value any, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}
