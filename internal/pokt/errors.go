package pokt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed RPC call.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
	KindRPC       ErrorKind = "rpc"
	KindPortal    ErrorKind = "portal"
)

// Error is returned by every Client call that does not yield a usable response.
type Error struct {
	Kind       ErrorKind
	Path       string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Message != "" {
			return fmt.Sprintf("pokt %s: http %d: %s", e.Path, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("pokt %s: http %d", e.Path, e.StatusCode)
	case KindRPC, KindPortal:
		return fmt.Sprintf("pokt %s: %s error code=%s: %s", e.Path, e.Kind, e.Code, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("pokt %s: %s: %v", e.Path, e.Kind, e.Err)
		}
		return fmt.Sprintf("pokt %s: %s", e.Path, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err carries a *Error.
func IsError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// errorBody covers both the portal shape {"error":{"code"|"statusCode","message"}}
// and the node shape {"code","message"}.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Code    json.RawMessage `json:"code"`
	Message json.RawMessage `json:"message"`
}

type portalError struct {
	Code       json.RawMessage `json:"code"`
	StatusCode json.RawMessage `json:"statusCode"`
	Message    json.RawMessage `json:"message"`
}

// parseErrorBody inspects a decoded response body for an embedded error.
// It returns nil when the body is not an object or carries no error.
func parseErrorBody(path string, body []byte) *Error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return nil
	}
	if present(eb.Error) {
		var pe portalError
		if err := json.Unmarshal(eb.Error, &pe); err != nil {
			// "error" is a bare string or number
			return &Error{Kind: KindPortal, Path: path, Message: scalar(eb.Error)}
		}
		code := pe.Code
		if !present(code) {
			code = pe.StatusCode
		}
		return &Error{Kind: KindPortal, Path: path, Code: scalar(code), Message: scalar(pe.Message)}
	}
	if truthy(eb.Code) {
		return &Error{Kind: KindRPC, Path: path, Code: scalar(eb.Code), Message: scalar(eb.Message)}
	}
	return nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func truthy(raw json.RawMessage) bool {
	if !present(raw) {
		return false
	}
	switch string(raw) {
	case "0", "false", `""`, "0.0":
		return false
	}
	return true
}

func scalar(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
