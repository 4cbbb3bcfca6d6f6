// Package protocol defines the remote call contract between the driver and the directory service,
// plus the wire codecs for the response payloads.
package protocol

import (
	"context"
	"errors"
	"fmt"
)

// Method names a remote operation.
type Method string

const (
	MethodList   Method = "list"
	MethodLookup Method = "lookup"
	MethodCreate Method = "create"
	MethodUnlink Method = "unlink"
	MethodMkdir  Method = "mkdir"
	MethodRmdir  Method = "rmdir"
)

// Methods lists every operation of the contract.
var Methods = []Method{MethodList, MethodLookup, MethodCreate, MethodUnlink, MethodMkdir, MethodRmdir}

// Valid reports whether m is part of the contract.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// Idempotent reports whether repeating the call cannot change remote state.
func (m Method) Idempotent() bool {
	return m == MethodList || m == MethodLookup
}

// Param is one request parameter. Parameters are sent in the order given.
type Param struct {
	Key   string
	Value string
}

// Status is the outcome code of a call. Zero is success. Positive values are
// produced by the directory service, negative values by the local transport.
type Status int64

const (
	StatusOK           Status = 0
	StatusNoEntry      Status = 1
	StatusNotFile      Status = 2
	StatusNotDir       Status = 3
	StatusNoEntryInDir Status = 4
	StatusExists       Status = 5
	StatusNotEmpty     Status = 8
	StatusNameTooLong  Status = 9
	StatusBadRequest   Status = 10
	StatusInternal     Status = 11

	StatusTransport         Status = -1
	StatusResponseTooLarge  Status = -2
	StatusMalformedResponse Status = -3
	StatusUnexpectedHTTP    Status = -4
)

// Local reports whether the status was produced on this side of the wire.
func (s Status) Local() bool {
	return s < 0
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoEntry:
		return "no such entry"
	case StatusNotFile:
		return "not a file"
	case StatusNotDir:
		return "not a directory"
	case StatusNoEntryInDir:
		return "no such entry in directory"
	case StatusExists:
		return "entry exists"
	case StatusNotEmpty:
		return "directory not empty"
	case StatusNameTooLong:
		return "name too long"
	case StatusBadRequest:
		return "bad request"
	case StatusInternal:
		return "internal error"
	case StatusTransport:
		return "transport failure"
	case StatusResponseTooLarge:
		return "response too large"
	case StatusMalformedResponse:
		return "malformed response"
	case StatusUnexpectedHTTP:
		return "unexpected http status"
	default:
		return fmt.Sprintf("status %d", int64(s))
	}
}

// CallError is returned by a Caller for every failed call.
type CallError struct {
	Method     Method
	Status     Status
	HTTPStatus int
	Err        error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Method, e.Status)
	if e.HTTPStatus != 0 && e.Status == StatusUnexpectedHTTP {
		msg = fmt.Sprintf("%s (%d)", msg, e.HTTPStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// AsCallError extracts a *CallError from err.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// StatusOf returns the call status carried by err, StatusOK for nil and
// StatusTransport for errors that did not come from a Caller.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if ce, ok := AsCallError(err); ok {
		return ce.Status
	}
	return StatusTransport
}

// Caller performs one blocking remote call. On success it returns the response
// payload, which is never longer than maxSize. On failure it returns a *CallError.
type Caller interface {
	Call(ctx context.Context, token string, method Method, maxSize int, params ...Param) ([]byte, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, token string, method Method, maxSize int, params ...Param) ([]byte, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, token string, method Method, maxSize int, params ...Param) ([]byte, error) {
	return f(ctx, token, method, maxSize, params...)
}
