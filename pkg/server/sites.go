package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/notify"
	"github.com/ratewriter/ratewriter/pkg/storage"
	"github.com/ratewriter/ratewriter/pkg/types"
)

type upsertSiteRequest struct {
	Token    string `json:"token"`
	PlanName string `json:"plan_name"`
}

// handleUpsertSite creates or replaces a site configuration. The token is
// required when the site is new; on an update an omitted token keeps the
// stored one. Everything else is a full replace.
func (s *Server) handleUpsertSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := r.PathValue("siteID")

	var req upsertSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	var isNew bool
	existing, err := s.storage.GetSiteConfig(ctx, siteID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Ctx(ctx).ErrorContext(ctx, "site lookup failed", slog.Any("error", err))
			writeJSONError(w, "site lookup failed", http.StatusInternalServerError)
			return
		}
		isNew = true
	}
	if isNew && req.Token == "" {
		writeJSONError(w, "token required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	site := types.SiteConfig{
		SiteID:    siteID,
		PlanName:  req.PlanName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !isNew {
		site.CreatedAt = existing.CreatedAt
		site.SealedToken = existing.SealedToken
	}
	if req.Token != "" {
		sealed, err := s.sealToken(ctx, req.Token)
		if err != nil {
			writeJSONError(w, "failed to seal token", http.StatusInternalServerError)
			return
		}
		site.SealedToken = sealed
	}

	if err := s.storage.UpsertSiteConfig(ctx, site); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save site config", slog.Any("error", err))
		writeJSONError(w, "failed to save site", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "site configured",
		slog.String("siteID", types.MaskSiteID(siteID)),
		slog.Bool("created", isNew),
	)
	w.WriteHeader(http.StatusNoContent)
}

type siteResponse struct {
	types.SiteConfig
	LastPush *types.PushResult `json:"last_push,omitempty"`
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := r.PathValue("siteID")

	site, err := s.storage.GetSiteConfig(ctx, siteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "site not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "site lookup failed", slog.Any("error", err))
		writeJSONError(w, "site lookup failed", http.StatusInternalServerError)
		return
	}
	// even the sealed ciphertext never leaves the server
	site.SealedToken = nil

	resp := siteResponse{SiteConfig: site}
	last, err := s.storage.GetLastPushResult(ctx, siteID)
	if err == nil {
		resp.LastPush = &last
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Ctx(ctx).WarnContext(ctx, "failed to load last push result", slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := s.storage.ListSiteIDs(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list sites", slog.Any("error", err))
		writeJSONError(w, "failed to list sites", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ids); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := r.PathValue("siteID")

	if _, err := s.storage.GetSiteConfig(ctx, siteID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "site not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "site lookup failed", slog.Any("error", err))
		writeJSONError(w, "site lookup failed", http.StatusInternalServerError)
		return
	}
	if err := s.storage.DeleteSiteConfig(ctx, siteID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete site config", slog.Any("error", err))
		writeJSONError(w, "failed to delete site", http.StatusInternalServerError)
		return
	}
	// a deleted site should not keep a sticky failure notification around
	s.notifications.Dismiss(siteID)

	log.Ctx(ctx).InfoContext(ctx, "site deleted", slog.String("siteID", types.MaskSiteID(siteID)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	active := s.notifications.Active()
	if active == nil {
		active = []notify.Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(active); err != nil {
		panic(http.ErrAbortHandler)
	}
}
