package usecase

import "fmt"

// ErrorKind classifies why a swap request ended in an error response.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindDecode        ErrorKind = "decode"
	KindNoFace        ErrorKind = "no_face"
	KindLowConfidence ErrorKind = "low_confidence"
	KindSwap          ErrorKind = "swap"
	KindEncode        ErrorKind = "encode"
	KindUnexpected    ErrorKind = "unexpected"
)

// ClientCaused reports whether the kind stems from the request itself rather
// than from the models or the worker.
func (k ErrorKind) ClientCaused() bool {
	switch k {
	case KindValidation, KindDecode, KindNoFace, KindLowConfidence:
		return true
	}
	return false
}

// SwapError is a pipeline failure. Message is the exact text returned to the
// caller; Err keeps the underlying cause for logs.
type SwapError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SwapError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SwapError) Unwrap() error {
	return e.Err
}

func newSwapError(kind ErrorKind, message string, cause error) *SwapError {
	return &SwapError{Kind: kind, Message: message, Err: cause}
}
