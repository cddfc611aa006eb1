package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Operation names. Each is appended to the base destination to form the
// request path.
const (
	OpWrite   = "write"
	OpRead    = "read"
	OpSetSize = "setSize"
)

// SessionIDBytes is the number of random bytes behind a session identifier.
const SessionIDBytes = 32

// ErrMalformed is returned when a body is not a well-formed JSON object or
// lacks a required field.
var ErrMalformed = errors.New("malformed message")

// codec replaces invalid UTF-8 the same way encoding/json does. Raw pty
// output is not always valid UTF-8; client input is validated before it gets
// here.
var codec = sonic.ConfigStd

// Request is the envelope posted for every operation. Fields that do not
// apply to an operation are left zero and omitted; extra is always present.
type Request struct {
	// common
	SessionID string            `json:"session_id"`
	Extra     map[string]string `json:"extra"`

	// write
	Data string `json:"data,omitempty"`

	// setSize
	Columns int `json:"columns,omitempty"`
	Rows    int `json:"rows,omitempty"`
}

// Response is the envelope returned by every operation. Only read fills Data.
type Response struct {
	Data string `json:"data"`
}

// Ack is the body written for acknowledgement-only operations.
var Ack = []byte("{}")

type rawResponse struct {
	Data *string `json:"data"`
}

// EncodeRequest serializes req.
func EncodeRequest(req *Request) ([]byte, error) {
	return codec.Marshal(req)
}

// DecodeRequest parses a request body.
func DecodeRequest(body []byte) (*Request, error) {
	if !isObject(body) {
		return nil, fmt.Errorf("%w: request is not a JSON object", ErrMalformed)
	}
	req := &Request{}
	if err := codec.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return req, nil
}

// EncodeResponse serializes resp.
func EncodeResponse(resp *Response) ([]byte, error) {
	return codec.Marshal(resp)
}

// DecodeResponse parses a response body. With requireData set, a body
// without a "data" field is malformed.
func DecodeResponse(body []byte, requireData bool) (*Response, error) {
	if !isObject(body) {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrMalformed)
	}
	raw := &rawResponse{}
	if err := codec.Unmarshal(body, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Data == nil {
		if requireData {
			return nil, fmt.Errorf("%w: missing field data", ErrMalformed)
		}
		return &Response{}, nil
	}
	return &Response{Data: *raw.Data}, nil
}

func isObject(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) >= 2 && body[0] == '{'
}
