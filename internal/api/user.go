package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/bumper/internal/account"
	"github.com/nerrad567/bumper/internal/audit"
	"github.com/nerrad567/bumper/internal/auth"
)

// nextAlertDelay is how far ahead homePageAlert schedules the next alert.
const nextAlertDelay = 12 * time.Hour

// caller identifies the app making a private API request.
type caller struct {
	account  *account.Account
	deviceID string
	country  string
}

// resolveCaller maps the path's device id to an account. In permissive
// mode the account is provisioned on first contact and sees every bot.
func (s *Server) resolveCaller(r *http.Request) (*caller, error) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "devid")
	country := chi.URLParam(r, "country")
	if country == "" {
		country = "us"
	}

	acct, err := s.registry.ResolveAccount(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if s.registry.Permissive() {
		if err := s.registry.AttachAllKnownBots(ctx, acct); err != nil {
			return nil, err
		}
	}
	return &caller{account: acct, deviceID: deviceID, country: country}, nil
}

// handleLogin issues a fresh token after dropping the account's expired ones.
func (s *Server) handleLogin(r *http.Request) (any, error) {
	c, err := s.resolveCaller(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	if _, err := s.sessions.RevokeExpiredTokensFor(ctx, c.account.ID); err != nil {
		return nil, err
	}
	token, err := s.sessions.IssueToken(ctx, c.account.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("app logged in", "device_id", c.deviceID, "account_id", c.account.ID)
	s.auditLog(audit.ActionLogin, audit.EntityAccount, c.account.ID, c.account.ID,
		map[string]any{"device_id": c.deviceID, "country": c.country})
	return c.account.Summarize(token.Value, c.country), nil
}

// handleCheckLogin validates the presented token without issuing a new one.
func (s *Server) handleCheckLogin(r *http.Request) (any, error) {
	c, err := s.resolveCaller(r)
	if err != nil {
		return nil, err
	}

	token := r.URL.Query().Get("accessToken")
	if err := s.sessions.ValidateToken(r.Context(), c.account.ID, token); err != nil {
		return nil, err
	}
	return c.account.Summarize(token, c.country), nil
}

// handleLogout revokes the token. It always succeeds.
func (s *Server) handleLogout(r *http.Request) (any, error) {
	c, err := s.resolveCaller(r)
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.sessions.RevokeToken(r.Context(), c.account.ID, r.URL.Query().Get("accessToken")); err != nil {
		return nil, err
	}
	s.auditLog(audit.ActionLogout, audit.EntityAccount, c.account.ID, c.account.ID,
		map[string]any{"device_id": c.deviceID})
	return nil, nil
}

// authCodeData is the getAuthCode payload.
type authCodeData struct {
	AuthCode   string `json:"authCode"`
	EcovacsUID string `json:"ecovacsUid"`
}

// handleGetAuthCode returns the token's auth code, minting it on first use.
func (s *Server) handleGetAuthCode(r *http.Request) (any, error) {
	c, err := s.resolveCaller(r)
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, auth.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}

	query := r.URL.Query()
	code, err := s.sessions.IssueOrGetAuthCode(r.Context(), c.account.ID, c.country, query.Get("accessToken"))
	if err != nil {
		return nil, err
	}
	return authCodeData{AuthCode: code, EcovacsUID: query.Get("uid")}, nil
}

func (s *Server) handleCheckAgreement(_ *http.Request) (any, error) {
	return []any{}, nil
}

// versionData is the checkVersion payload; every field is a "no update" stub.
type versionData struct {
	C   *string `json:"c"`
	Img *string `json:"img"`
	R   int     `json:"r"`
	T   *string `json:"t"`
	U   *string `json:"u"`
	UT  int     `json:"ut"`
	V   *string `json:"v"`
}

func (s *Server) handleCheckVersion(_ *http.Request) (any, error) {
	return versionData{}, nil
}

// alertData is the homePageAlert payload.
type alertData struct {
	ClickSchemeURL *string `json:"clickSchemeUrl"`
	ClickWebURL    *string `json:"clickWebUrl"`
	HasCampaign    string  `json:"hasCampaign"`
	ImageURL       *string `json:"imageUrl"`
	NextAlertTime  int64   `json:"nextAlertTime"`
	ServerTime     int64   `json:"serverTime"`
}

func (s *Server) handleHomePageAlert(_ *http.Request) (any, error) {
	now := time.Now()
	return alertData{
		HasCampaign:   "N",
		NextAlertTime: now.Add(nextAlertDelay).UnixMilli(),
		ServerTime:    now.UnixMilli(),
	}, nil
}
