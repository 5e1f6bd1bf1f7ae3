package teams

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/essembi/essembi-chat/internal/connector"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

const maxBody = 1 << 20

// Handler serves the Bot Framework messaging endpoint.
type Handler struct {
	host    *Client
	handler connector.TurnHandler
	secret  []byte
	logger  *slog.Logger
}

// NewHandler creates the messaging endpoint handler. When signingKey is
// set (the base64 security token of a Teams outgoing webhook) requests must
// carry a matching HMAC signature.
func NewHandler(host *Client, handler connector.TurnHandler, signingKey string, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{host: host, handler: handler, logger: logger}
	if signingKey != "" {
		key, err := base64.StdEncoding.DecodeString(signingKey)
		if err != nil {
			return nil, err
		}
		h.secret = key
	}
	return h, nil
}

// ServeHTTP handles one activity. Activities naming an untrusted service
// URL are refused with 403 before the bot sees them. Invoke responses are written as the body;
// other activities are answered with 200 and replies go out through the
// connector API. A failed turn answers 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.secret != nil && !verifyHMAC(body, h.secret, r.Header.Get("Authorization")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var act protocol.Activity
	if err := json.Unmarshal(body, &act); err != nil {
		http.Error(w, "invalid activity", http.StatusBadRequest)
		return
	}
	if act.Type == "" {
		http.Error(w, "activity type is required", http.StatusBadRequest)
		return
	}
	if err := h.host.CheckServiceURL(act.ServiceURL); err != nil {
		h.logger.WarnContext(r.Context(), "activity refused", "service_url", act.ServiceURL, "error", err)
		http.Error(w, "untrusted service url", http.StatusForbidden)
		return
	}

	resp, err := h.handler(r.Context(), h.host, &act)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if act.Type != protocol.ActivityInvoke {
		w.WriteHeader(http.StatusOK)
		return
	}
	if resp == nil {
		resp = &protocol.ActionResponse{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("write invoke response", "error", err)
	}
}

// verifyHMAC checks an outgoing-webhook signature.
// Header format: "HMAC <base64>"
func verifyHMAC(body, key []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "HMAC ")
	if !ok {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign computes the Authorization header value for body, for tests and
// local tooling.
func Sign(body []byte, signingKey string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(signingKey)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return "HMAC " + base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
