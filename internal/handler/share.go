package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/portfolio/internal/channel"
	"github.com/sakif/portfolio/internal/service"
)

// ShareHandler admits guests to a shared session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleJoin → check the passphrase, hand out an invite token
//
// The websocket itself (GET /share/ws) is the channel.Hub, mounted behind
// auth.RequireInvite by the server.
type ShareHandler struct {
	share  *service.ShareService
	title  string
	logger *slog.Logger
}

// NewShareHandler creates a ShareHandler. title is the activity title sent
// to joining guests.
func NewShareHandler(share *service.ShareService, title string, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{share: share, title: title, logger: logger}
}

// HandleJoin issues an invite token.
//
// HTTP: POST /share/join   {"nickname": "bob", "passphrase": "..."}
//
// RESPONSE: {"token": "<jwt>", "title": "Portfolio"}
//
// The token is short-lived; the guest dials /share/ws?token=... right away.
func (h *ShareHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req channel.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.share.Join(r.Context(), req.Nickname, req.Passphrase)
	if err != nil {
		h.logger.Info("join refused",
			slog.String("nick", req.Nickname),
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, channel.JoinResponse{Token: token, Title: h.title})
}
