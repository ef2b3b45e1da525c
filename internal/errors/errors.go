package errors

import (
	"errors"
	"fmt"
)

// Standard library passthroughs so callers need a single errors import
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// domainError implements the Error interface
type domainError struct {
	code    ErrorCode
	message string
	cause   error
	data    any
}

func (e *domainError) Error() string {
	msg := e.message
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}

	switch {
	case e.data != nil:
		return fmt.Sprintf("%s: %v", msg, e.data)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.cause)
	default:
		return msg
	}
}

func (e *domainError) Code() ErrorCode {
	return e.code
}

func (e *domainError) WithMessage(msg string) Error {
	clone := *e
	clone.message = msg
	return &clone
}

func (e *domainError) WithData(data any) Error {
	clone := *e
	clone.data = data
	return &clone
}

func (e *domainError) GetData() any {
	return e.data
}

func (e *domainError) Unwrap() error {
	return e.cause
}

type defaultFactory struct{}

func (*defaultFactory) New(code ErrorCode) Error {
	return &domainError{code: code}
}

func (*defaultFactory) Wrap(code ErrorCode, err error) Error {
	return &domainError{code: code, cause: err}
}

func (*defaultFactory) WithMessage(code ErrorCode, msg string) Error {
	return &domainError{code: code, message: msg}
}

func (*defaultFactory) WithData(code ErrorCode, data any) Error {
	return &domainError{code: code, data: data}
}

// New creates a Factory instance for error creation
func New() Factory {
	return &defaultFactory{}
}
