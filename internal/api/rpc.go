package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nerrad567/bumper/internal/account"
	"github.com/nerrad567/bumper/internal/audit"
	"github.com/nerrad567/bumper/internal/device"
)

// user.do and lookup.do discriminators.
const (
	todoFindBest        = "FindBest"
	todoLoginByItToken  = "loginByItToken"
	todoGetDeviceList   = "GetDeviceList"
	todoSetDeviceNick   = "SetDeviceNick"
	todoAddOneDevice    = "AddOneDevice"
	todoDeleteOneDevice = "DeleteOneDevice"

	serviceMsg    = "EcoMsgNew"
	serviceUpdate = "EcoUpdate"
)

// rpcResult is the minimal user.do reply.
type rpcResult struct {
	Result string `json:"result"`
	Todo   string `json:"todo"`
}

var rpcOK = rpcResult{Result: "ok", Todo: "result"}

// rpcFailure is the user.do reply for a rejected call.
type rpcFailure struct {
	Result string `json:"result"`
	Todo   string `json:"todo"`
	Errno  string `json:"errno,omitempty"`
	Error  string `json:"error,omitempty"`
}

// serviceEndpoint is a FindBest answer.
type serviceEndpoint struct {
	Result string `json:"result"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
}

// itTokenLogin is the loginByItToken reply.
type itTokenLogin struct {
	Resource string `json:"resource"`
	Result   string `json:"result"`
	Todo     string `json:"todo"`
	Token    string `json:"token"`
	UserID   string `json:"userId"`
}

// deviceList is the GetDeviceList reply.
type deviceList struct {
	Devices []device.Bot `json:"devices"`
	Result  string       `json:"result"`
	Todo    string       `json:"todo"`
}

// handleUsersRPC serves the multiplexed user.do endpoint. GET always fails.
func (s *Server) handleUsersRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusOK, rpcFailure{Result: "fail", Todo: "result"})
		return
	}

	body, err := s.usersRPC(r)
	if err != nil {
		code, msg, _ := s.logFailure(r, err)
		writeJSON(w, http.StatusOK, rpcFailure{Result: "fail", Todo: "result", Errno: code, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) usersRPC(r *http.Request) (any, error) {
	req, err := decodeRequest(r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()

	switch req.Todo {
	case todoFindBest:
		return s.findBest(req.Service)

	case todoLoginByItToken:
		if err := s.sessions.CheckAuthCode(ctx, req.UserID, req.Token); err != nil {
			return nil, err
		}
		s.presence.Register(account.NormalizeUID(req.UserID), req.Realm, req.Resource)
		s.auditLog(audit.ActionLogin, audit.EntityClient, req.Resource, account.NormalizeUID(req.UserID),
			map[string]any{"realm": req.Realm})
		return itTokenLogin{
			Resource: req.Resource,
			Result:   "ok",
			Todo:     "result",
			Token:    req.Token,
			UserID:   req.UserID,
		}, nil

	case todoGetDeviceList:
		acct, err := s.rpcCaller(ctx, req)
		if err != nil {
			return nil, err
		}
		bots, err := s.registry.VisibleBots(ctx, acct)
		if err != nil {
			return nil, err
		}
		return deviceList{Devices: bots, Result: "ok", Todo: "result"}, nil

	case todoSetDeviceNick:
		if err := s.registry.RenameBot(ctx, req.DID, req.Nick); err != nil {
			return nil, err
		}
		s.auditLog(audit.ActionRename, audit.EntityBot, req.DID, "", map[string]any{"nick": req.Nick})
		return rpcOK, nil

	case todoAddOneDevice:
		acct, err := s.rpcCaller(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := s.registry.AddBot(ctx, req.DID, req.Nick); err != nil {
			return nil, err
		}
		if !acct.AllBots && acct.ID != "" {
			if err := s.registry.AssignBot(ctx, acct.ID, req.DID); err != nil {
				return nil, err
			}
		}
		s.auditLog(audit.ActionCreate, audit.EntityBot, req.DID, acct.ID, map[string]any{"nick": req.Nick})
		return rpcOK, nil

	case todoDeleteOneDevice:
		if err := s.registry.RemoveBot(ctx, req.DID); err != nil {
			return nil, err
		}
		s.auditLog(audit.ActionDelete, audit.EntityBot, req.DID, "", nil)
		return rpcOK, nil

	default:
		return nil, fmt.Errorf("%w: unknown todo %q", errValidation, req.Todo)
	}
}

// rpcCaller identifies the account behind a user.do call. In permissive
// mode every caller sees every bot; in strict mode the auth block must
// carry a live auth code.
func (s *Server) rpcCaller(ctx context.Context, req *request) (*account.Account, error) {
	if s.registry.Permissive() {
		return &account.Account{AllBots: true}, nil
	}
	if req.Auth == nil || req.Auth.UserID == "" {
		return nil, fmt.Errorf("%w: missing auth", errValidation)
	}
	if err := s.sessions.CheckAuthCode(ctx, req.Auth.UserID, req.Auth.Token); err != nil {
		return nil, err
	}
	return s.registry.Account(ctx, account.NormalizeUID(req.Auth.UserID))
}

// findBest answers service discovery.
func (s *Server) findBest(service string) (serviceEndpoint, error) {
	switch service {
	case serviceMsg:
		return serviceEndpoint{Result: "ok", IP: s.cfg.AnnounceAddress(), Port: s.cfg.Services.MsgPort}, nil
	case serviceUpdate:
		return serviceEndpoint{Result: "ok", IP: s.cfg.Services.UpdateHost, Port: s.cfg.Services.UpdatePort}, nil
	default:
		return serviceEndpoint{}, fmt.Errorf("%w: unknown service %q", errValidation, service)
	}
}
