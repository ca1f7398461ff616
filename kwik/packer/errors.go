package packer

import (
	"encoding/json"
	"fmt"

	"github.com/ytget/pahedl/errs"
)

// Error codes
const (
	ErrCodePayloadEmpty      = "PAYLOAD_EMPTY"
	ErrCodeAlphabetMismatch  = "ALPHABET_MISMATCH"
	ErrCodeSymbolUnknown     = "SYMBOL_UNKNOWN"
	ErrCodeDigitOutOfRange   = "DIGIT_OUT_OF_RANGE"
	ErrCodeNumeralOverflow   = "NUMERAL_OVERFLOW"
	ErrCodeCodepointInvalid  = "CODEPOINT_INVALID"
	ErrCodeJSExecutionFailed = "JS_EXECUTION_FAILED"
)

// Error represents a structured decoding error with code and details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap ties every decoding failure to errs.ErrMalformedPayload.
func (e *Error) Unwrap() error {
	return errs.ErrMalformedPayload
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

func hasCode(err error, codes ...string) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

// IsAlphabetError returns true if the alphabet and base do not fit together
func IsAlphabetError(err error) bool {
	return hasCode(err, ErrCodeAlphabetMismatch)
}

// IsSymbolError returns true if the payload contains symbols or digits the base cannot represent
func IsSymbolError(err error) bool {
	return hasCode(err, ErrCodeSymbolUnknown, ErrCodeDigitOutOfRange)
}

// IsRangeError returns true if a decoded value cannot be represented
func IsRangeError(err error) bool {
	return hasCode(err, ErrCodeNumeralOverflow, ErrCodeCodepointInvalid)
}

// IsJSError returns true if the error is a JavaScript execution error
func IsJSError(err error) bool {
	return hasCode(err, ErrCodeJSExecutionFailed)
}
