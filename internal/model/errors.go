package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed raw record or request parameter
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRange is returned when the end date precedes the start date
	ErrInvalidRange = errors.New("invalid date range")

	// ErrServiceUnavailable marks a failed or non-2xx call to a survey or narrative endpoint
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrMalformedResponse marks a body that did not have the expected JSON shape
	ErrMalformedResponse = errors.New("malformed response shape")
)

// ServiceError carries the endpoint and reason of an ErrServiceUnavailable failure
type ServiceError struct {
	Service    string // e.g. "survey-api", "narrative"
	Endpoint   string
	StatusCode int // 0 for transport errors
	Detail     string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := e.Service + " " + e.Endpoint
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		msg += fmt.Sprintf(": status %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	case e.Detail != "":
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes every ServiceError match ErrServiceUnavailable
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
