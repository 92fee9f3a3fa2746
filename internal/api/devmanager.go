package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/bumper/internal/relay"
)

// tdPollSCResult is sent by the app while it waits for Wi-Fi provisioning.
const tdPollSCResult = "PollSCResult"

// relayFailure is the devmanager.do body for a command that could not be
// completed: the failure envelope plus the legacy relay fields.
type relayFailure struct {
	Envelope
	ID    string `json:"id,omitempty"`
	Errno string `json:"errno"`
	Ret   string `json:"ret"`
	Debug string `json:"debug,omitempty"`
}

// retOK is the devmanager.do body for a provisioning poll.
type retOK struct {
	Ret string `json:"ret"`
}

// handleDevManager relays a command to a bot and returns the bot's reply
// verbatim. Only this request waits; the listener keeps serving others.
func (s *Server) handleDevManager(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeRelayFailure(w, r, "", err)
		return
	}

	if req.ToID == "" {
		if req.TD == tdPollSCResult {
			writeJSON(w, http.StatusOK, retOK{Ret: "ok"})
			return
		}
		s.writeRelayFailure(w, r, "", fmt.Errorf("%w: missing toId", errValidation))
		return
	}

	payload, err := commandPayload(req.Payload)
	if err != nil {
		s.writeRelayFailure(w, r, "", err)
		return
	}

	res, err := s.relay.Relay(r.Context(), relay.Command{
		ToID:        req.ToID,
		ToType:      req.ToType,
		ToRes:       req.ToRes,
		CmdName:     req.CmdName,
		PayloadType: req.PayloadType,
		Payload:     payload,
	}, 0)
	if err != nil {
		s.writeRelayFailure(w, r, res.CorrelationID, err)
		return
	}
	writeRaw(w, http.StatusOK, res.Reply)
}

func (s *Server) writeRelayFailure(w http.ResponseWriter, r *http.Request, id string, err error) {
	code, msg, _ := s.logFailure(r, err)
	body := relayFailure{
		Envelope: failureEnvelope(code, msg),
		ID:       id,
		Errno:    CodeCommon,
		Ret:      "fail",
	}
	if errors.Is(err, relay.ErrTimeout) {
		body.Debug = "wait for response timed out"
	}
	writeJSON(w, http.StatusOK, body)
}
