package gateway

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by fetchers when the gateway has no such resource.
var ErrNotFound = errors.New("gateway resource not found")

// BusinessError is a decline or validation failure recognised by the
// gateway. It is terminal and never retried automatically.
type BusinessError struct {
	Type        string
	Code        string
	UserMessage string
	Message     string
	RequestID   string
	HTTPStatus  int
}

func (e *BusinessError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Display()
	}
	return fmt.Sprintf("gateway %s: %s", e.Type, msg)
}

// Display is the message shown to the payer, with the request id for support.
func (e *BusinessError) Display() string {
	msg := e.UserMessage
	if msg == "" {
		msg = e.Code
	}
	return fmt.Sprintf("%s (request ID: %s)", msg, e.RequestID)
}

// AsBusinessError unwraps err into a *BusinessError when possible.
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
