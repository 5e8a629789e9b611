package rpcx

import (
	"encoding/json"
	"strings"

	"user-platform/shared/errx"
)

// Metadata is the open map riding alongside a payload. Caller identity
// always travels here, never inside the payload itself.
type Metadata map[string]string

// Get looks up a key case-insensitively, so "authorization" and
// "Authorization" are equivalent on the wire.
func (m Metadata) Get(key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Envelope is the wire contract: {"data": <payload>, "metadata"?: {...}}.
// Metadata is omitted entirely when absent.
type Envelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata,omitempty"`
}

// MarshalEnvelope wraps a payload for transmission. When meta is empty the
// envelope is just {data}.
func MarshalEnvelope(data any, meta Metadata) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	env := Envelope{Data: raw}
	if len(meta) > 0 {
		env.Metadata = meta
	}
	return json.Marshal(env)
}

// Normalize turns an inbound message body into (data, metadata). Receivers
// must also accept a bare payload with no envelope; that legacy form yields
// the body itself and nil metadata.
func Normalize(body []byte) (json.RawMessage, Metadata) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		return env.Data, env.Metadata
	}
	return body, nil
}

// response is the reply-side wire shape: exactly one of Data or Error.
type response struct {
	Data  json.RawMessage   `json:"data,omitempty"`
	Error *errx.RemoteError `json:"error,omitempty"`
}
