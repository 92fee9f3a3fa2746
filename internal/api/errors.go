package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/bumper/internal/account"
	"github.com/nerrad567/bumper/internal/auth"
	"github.com/nerrad567/bumper/internal/device"
	"github.com/nerrad567/bumper/internal/relay"
)

// Envelope codes. The values are a contract with existing apps and robots
// and must never be renumbered.
const (
	CodeSuccess              = "0000"
	CodeCommon               = "0001"
	CodeInterfaceAuth        = "0002"
	CodeParamInvalid         = "0003"
	CodeTokenInvalid         = "0004"
	CodeTimestampInvalid     = "0005"
	CodeEmailUsed            = "1001"
	CodeEmailNonExist        = "1002"
	CodeUserNotActivated     = "1003"
	CodeUserDisabled         = "1004"
	CodePasswordWrong        = "1005"
	CodeActivateTokenTimeout = "1006"
	CodeResetPwdTokenTimeout = "1007"
	CodeWrongEmailAddress    = "1008"
	CodeWrongPasswordFormat  = "1009"
	CodeEmailSendTimeLimit   = "1011"
	CodeWrongConfirmPassword = "10010"
	CodeDefault              = "9000"
)

// Envelope messages.
const (
	msgSuccess          = "操作成功"
	msgWrongCredentials = "当前密码错误"
	msgInternal         = "internal error"
)

// errValidation marks malformed requests and missing fields.
var errValidation = errors.New("api: invalid request")

// Envelope is the common response body of the app-facing routes.
type Envelope struct {
	Code string `json:"code"`
	Data any    `json:"data"`
	Msg  string `json:"msg"`
	Time int64  `json:"time"`
}

// newEnvelope builds a success envelope around data.
func newEnvelope(data any) Envelope {
	return Envelope{Code: CodeSuccess, Data: data, Msg: msgSuccess, Time: nowMillis()}
}

// failureEnvelope builds the envelope for a non-success code.
func failureEnvelope(code, msg string) Envelope {
	return Envelope{Code: code, Data: nil, Msg: msg, Time: nowMillis()}
}

// envelopeFor maps a handler error to its envelope code and message.
// internal reports an unexpected failure that deserves an error log.
func envelopeFor(err error) (code, msg string, internal bool) {
	switch {
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrAuthCodeInvalid):
		return CodeTokenInvalid, msgWrongCredentials, false
	case errors.Is(err, account.ErrNotActivated):
		return CodeUserNotActivated, msgWrongCredentials, false
	case errors.Is(err, relay.ErrTimeout):
		return CodeCommon, "wait for response timed out", false
	case errors.Is(err, relay.ErrUnreachable):
		return CodeCommon, "bot not reachable", false
	case errors.Is(err, relay.ErrTooManyPending):
		return CodeCommon, "too many pending commands", false
	case errors.Is(err, errValidation),
		errors.Is(err, relay.ErrInvalidCommand),
		errors.Is(err, device.ErrInvalidDID),
		errors.Is(err, device.ErrInvalidDeviceID),
		errors.Is(err, account.ErrInvalidID):
		return CodeCommon, err.Error(), false
	case errors.Is(err, device.ErrBotNotFound), errors.Is(err, account.ErrAccountNotFound):
		return CodeCommon, "not found", false
	default:
		return CodeCommon, msgInternal, true
	}
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeRaw writes an already encoded JSON body.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck // Best-effort write to response; connection may be closed
}

// nowMillis returns the current time in epoch milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
