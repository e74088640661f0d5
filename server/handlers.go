package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"taskmodule/bot"
)

const maxActivityBytes = 1 << 20

func (a *App) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := RequestIDFromContext(ctx)

	var activity bot.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&activity); err != nil {
		a.Logger.Warn("bot.invalid_activity", "request_id", reqID, "error", err)
		http.Error(w, "invalid activity", http.StatusBadRequest)
		return
	}
	noteActivity(ctx, activity.Type, activity.ChannelID)

	if a.Channels != nil {
		if _, err := a.Channels.ValidateAuthHeader(ctx, r.Header.Get("Authorization"), activity.ChannelID); err != nil {
			a.Logger.Warn("bot.unauthorized", "request_id", reqID, "channel_id", activity.ChannelID, "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if allowed := a.Config.Bot.AllowedChannels; len(allowed) > 0 && !slices.Contains(allowed, activity.ChannelID) {
		a.Logger.Warn("bot.channel_rejected", "request_id", reqID, "channel_id", activity.ChannelID)
		http.Error(w, "channel not allowed", http.StatusForbidden)
		return
	}

	resp, err := a.Bot.HandleActivity(ctx, &activity)
	if err != nil {
		a.Logger.Error("bot.activity_failed", "request_id", reqID, "type", activity.Type, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	writeJSON(w, resp.Status, resp.Body)
}

func (a *App) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	provider := a.Config.Storage.Normalize().Provider
	if err := a.Store.Ping(ctx); err != nil {
		a.Logger.Error("healthz.storage", "request_id", RequestIDFromContext(r.Context()), "provider", provider, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "storage": provider})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": provider})
}

// handleAuthStart begins sign-in inside the tab's authentication pop-up.
func (a *App) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	if a.Provider == nil {
		http.Error(w, "sign-in not configured", http.StatusServiceUnavailable)
		return
	}

	req := AuthRequest{
		ID:        a.AuthRequests.NewID(),
		Nonce:     uuid.NewString(),
		Verifier:  oauth2.GenerateVerifier(),
		LoginHint: r.URL.Query().Get("loginHint"),
		CreatedAt: time.Now(),
	}
	a.AuthRequests.Save(req)

	a.Logger.Info("auth.start", "request_id", RequestIDFromContext(r.Context()), "state", req.ID)
	http.Redirect(w, r, a.Provider.AuthCodeURL(req.ID, req.Nonce, req.Verifier, req.LoginHint), http.StatusFound)
}

// handleAuthEnd completes sign-in and renders the page that reports the
// outcome back to the tab.
func (a *App) handleAuthEnd(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		reason := e
		if desc := q.Get("error_description"); desc != "" {
			reason = fmt.Sprintf("%s: %s", e, desc)
		}
		a.Logger.Warn("auth.failed", "request_id", reqID, "reason", reason)
		a.renderAuthEnd(w, http.StatusOK, authEndView{Outcome: "failure", Reason: reason})
		return
	}

	if a.Provider == nil {
		a.renderAuthEnd(w, http.StatusServiceUnavailable, authEndView{Outcome: "failure", Reason: "sign-in not configured"})
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		a.renderAuthEnd(w, http.StatusBadRequest, authEndView{Outcome: "failure", Reason: "missing state or code"})
		return
	}
	req, ok := a.AuthRequests.Consume(state)
	if !ok {
		a.renderAuthEnd(w, http.StatusBadRequest, authEndView{Outcome: "failure", Reason: "unknown state"})
		return
	}

	user, err := a.Provider.Exchange(r.Context(), code, req.Verifier, req.Nonce)
	if err != nil {
		a.Logger.Error("auth.exchange_failed", "request_id", reqID, "error", err)
		a.renderAuthEnd(w, http.StatusBadGateway, authEndView{Outcome: "failure", Reason: "login failed"})
		return
	}

	result, err := json.Marshal(user)
	if err != nil {
		a.renderAuthEnd(w, http.StatusInternalServerError, authEndView{Outcome: "failure", Reason: "encode result"})
		return
	}
	a.Logger.Info("auth.success", "request_id", reqID, "sub", user.Subject)
	a.renderAuthEnd(w, http.StatusOK, authEndView{Outcome: "success", Result: string(result)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
