package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// request is the union of every field the POST endpoints read. Bodies
// arrive either form-encoded or as raw JSON and decode into the same shape.
type request struct {
	Todo     string   `json:"todo"`
	Service  string   `json:"service"`
	UserID   string   `json:"userId"`
	Token    string   `json:"token"`
	Realm    string   `json:"realm"`
	Resource string   `json:"resource"`
	DID      string   `json:"did"`
	Nick     string   `json:"nick"`
	Auth     *rpcAuth `json:"auth,omitempty"`

	// devmanager.do
	ToID        string          `json:"toId"`
	ToType      string          `json:"toType"`
	ToRes       string          `json:"toRes"`
	CmdName     string          `json:"cmdName"`
	PayloadType string          `json:"payloadType"`
	Payload     json.RawMessage `json:"payload"`
	TD          string          `json:"td"`
}

// rpcAuth is the caller block the app attaches to user.do calls.
type rpcAuth struct {
	With     string `json:"with"`
	UserID   string `json:"userid"`
	Realm    string `json:"realm"`
	Token    string `json:"token"`
	Resource string `json:"resource"`
}

// decodeRequest reads r's body as JSON when it looks like a JSON object
// and as form values otherwise, whatever the Content-Type claims.
func decodeRequest(r *http.Request) (*request, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", errValidation, err)
	}
	raw = bytes.TrimSpace(raw)

	var req request
	if len(raw) == 0 {
		return &req, nil
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %w", errValidation, err)
		}
		return &req, nil
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errValidation, err)
	}
	if err := decodeForm(values, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", errValidation, err)
	}
	return &req, nil
}

// decodeForm maps form values onto the JSON field names of req. Values
// that hold a JSON object are embedded as objects; everything else is a string.
func decodeForm(values url.Values, req *request) error {
	fields := make(map[string]json.RawMessage, len(values))
	for key := range values {
		v := values.Get(key)
		if len(v) > 0 && v[0] == '{' && json.Valid([]byte(v)) {
			fields[key] = json.RawMessage(v)
			continue
		}
		quoted, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[key] = quoted
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, req)
}

// commandPayload returns the bytes to publish for a devmanager payload.
// A JSON string is unwrapped (XML commands arrive that way); anything else
// is passed through as the raw JSON document.
func commandPayload(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: payload: %w", errValidation, err)
		}
		return []byte(s), nil
	}
	return raw, nil
}
