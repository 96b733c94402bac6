package command

import (
	"fmt"
	"strings"
)

// Response is what one pipeline step hands to the next step, or to the
// renderer when it is the last. A non-empty Error ends the pipeline.
type Response struct {
	Error   string
	From    string
	Payload any
}

// Reply builds a successful response.
func Reply(from string, payload any) *Response {
	return &Response{From: from, Payload: payload}
}

// Fail builds an error-bearing response with a user-facing message.
func Fail(from, format string, a ...any) *Response {
	return &Response{From: from, Error: fmt.Sprintf(format, a...)}
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r != nil && r.Error != ""
}

// Text renders the payload as text; nil payloads render empty.
func (r *Response) Text() string {
	if r == nil || r.Payload == nil {
		return ""
	}
	switch p := r.Payload.(type) {
	case string:
		return p
	case fmt.Stringer:
		return p.String()
	case []string:
		return strings.Join(p, "\n")
	}
	return fmt.Sprint(r.Payload)
}
