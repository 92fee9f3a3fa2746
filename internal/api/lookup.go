package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// msgServer is the FindBest answer for the message service. Robots match
// the reply text naively, so field order is fixed and the encoding is compact.
type msgServer struct {
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	Result string `json:"result"`
}

// handleLookup serves device service discovery.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err == nil && req.Todo != todoFindBest {
		err = fmt.Errorf("%w: unknown todo %q", errValidation, req.Todo)
	}
	if err != nil {
		code, msg, _ := s.logFailure(r, err)
		writeJSON(w, http.StatusOK, rpcFailure{Result: "fail", Todo: "result", Errno: code, Error: msg})
		return
	}

	if req.Service == serviceMsg {
		body, err := json.Marshal(msgServer{IP: s.cfg.AnnounceAddress(), Port: s.cfg.Services.MsgPort, Result: "ok"})
		if err != nil {
			s.logFailure(r, err)
			writeJSON(w, http.StatusOK, rpcFailure{Result: "fail", Todo: "result", Errno: CodeCommon, Error: msgInternal})
			return
		}
		writeRaw(w, http.StatusOK, body)
		return
	}

	endpoint, err := s.findBest(req.Service)
	if err != nil {
		code, msg, _ := s.logFailure(r, err)
		writeJSON(w, http.StatusOK, rpcFailure{Result: "fail", Todo: "result", Errno: code, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}
