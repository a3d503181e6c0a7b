package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/publish"
	"github.com/ratewriter/ratewriter/pkg/storage"
	"github.com/ratewriter/ratewriter/pkg/types"
)

type pushRequest struct {
	SiteID   string             `json:"site_id"`
	PlanName string             `json:"plan_name"`
	Rates    []types.RatePeriod `json:"rates"`
}

// handlePush pushes a rate schedule to the site named in the request body.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.pushForSite(w, r, req.SiteID, req.PlanName, req.Rates)
}

// handleSitePush is the same operation with the site taken from the URL. A
// site_id in the body is ignored.
func (s *Server) handleSitePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.pushForSite(w, r, r.PathValue("siteID"), req.PlanName, req.Rates)
}

func (s *Server) pushForSite(w http.ResponseWriter, r *http.Request, siteID, planName string, rates []types.RatePeriod) {
	ctx := r.Context()
	if siteID == "" {
		writeJSONError(w, "site_id required", http.StatusBadRequest)
		return
	}

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
	site.Token, err = s.unsealToken(ctx, site.SealedToken)
	if err != nil {
		writeJSONError(w, "failed to unseal token", http.StatusInternalServerError)
		return
	}

	client := s.vendor.ClientFor(site.Token)
	orch := publish.NewOrchestrator(s.notifications, s.pushSink(site.SiteID), s.metrics)
	if s.pushSleep != nil {
		orch = orch.WithSleep(s.pushSleep)
	}
	res := orch.Push(ctx, client, site, rates, planName)

	if !res.Success && res.AttemptCount == 0 {
		// the schedule never validated, nothing was sent
		writeJSONError(w, res.Error, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// pushSink records a finished push against the real site ID, which the result
// itself only carries masked.
func (s *Server) pushSink(siteID string) publish.SinkFunc {
	return func(ctx context.Context, res types.PushResult) {
		if err := s.storage.RecordPushResult(ctx, siteID, res); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to record push result", slog.Any("error", err))
		}
		log.Ctx(ctx).InfoContext(ctx, "push recorded",
			slog.String("pushID", res.ID),
			slog.Bool("success", res.Success),
			slog.Int("attempts", res.AttemptCount),
			slog.String("verify", string(res.VerifyState)),
		)
	}
}
