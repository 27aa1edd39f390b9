package usecase

import (
	"errors"
	"fmt"

	"companion-relay/internal/metrics"
)

type ErrorCode string

// Every code is recovered inside the relay; none reaches the webhook response.
const (
	ErrorStoreRead  ErrorCode = "STORE_READ_FAILURE"
	ErrorCompletion ErrorCode = "COMPLETION_FAILURE"
	ErrorDispatch   ErrorCode = "DISPATCH_FAILURE"
	ErrorPanic      ErrorCode = "EVENT_PANIC"
)

// stages maps each code to the pipeline stage it is counted under.
var stages = map[ErrorCode]string{
	ErrorStoreRead:  metrics.StageEntitlement,
	ErrorCompletion: metrics.StageCompletion,
	ErrorDispatch:   metrics.StageDispatch,
	ErrorPanic:      metrics.StagePanic,
}

// Error is a failure recovered at one stage of the relay pipeline.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("usecase: %s stage failed: %s (%s)", e.Stage(), e.Code, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Stage names the pipeline stage the error belongs to; unknown codes report
// "unknown".
func (e *Error) Stage() string {
	if e == nil {
		return ""
	}
	if stage, ok := stages[e.Code]; ok {
		return stage
	}
	return "unknown"
}

// StageOf returns the stage of the first *Error in err's chain.
func StageOf(err error) (string, bool) {
	var usecaseErr *Error
	if !errors.As(err, &usecaseErr) {
		return "", false
	}
	return usecaseErr.Stage(), true
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
