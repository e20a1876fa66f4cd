package handlers

import (
	"net/http"
	"strings"

	"zenux/internal/relay"
)

// WSRelay subscribes an authenticated realtime session to the scopes it asks
// for. The Auth middleware accepts the token query parameter, which is how
// browser websocket clients authenticate. Scopes the caller is not entitled
// to are dropped silently rather than failing the whole session.
func (h *Handler) WSRelay(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	requested := strings.Split(r.URL.Query().Get("scopes"), ",")
	scopes := make([]string, 0, len(requested)+1)
	scopes = append(scopes, "user:"+userID)
	for _, scope := range requested {
		scope = strings.TrimSpace(scope)
		if scope == "" || scope == "user:"+userID {
			continue
		}
		if h.scopeAllowed(r, userID, scope) {
			scopes = append(scopes, scope)
		}
	}

	relay.ServeWS(w, r, h.hub, scopes)
}

func (h *Handler) scopeAllowed(r *http.Request, userID, scope string) bool {
	kind, id, ok := strings.Cut(scope, ":")
	if !ok || id == "" {
		return false
	}
	switch kind {
	case "wallet":
		_, err := h.wallets.MemberRole(r.Context(), id, userID)
		return err == nil
	case "chat":
		chat, err := h.chats.GetChat(r.Context(), id)
		return err == nil && chat.UserID == userID
	}
	return false
}
