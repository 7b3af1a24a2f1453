package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/yanmasharski/kidlock-tv/internal/codes"
	"github.com/yanmasharski/kidlock-tv/internal/ledger"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

// usedMinutes reads today's tracked usage for redemption math. A missing
// permission counts as zero so redemption still works while the budget
// fails open.
func (s *Server) usedMinutes(r *http.Request) (int, error) {
	used, err := s.usage.TodayUsageMinutes(r.Context(), "", time.Time{})
	if errors.Is(err, usagestats.ErrUsageAccessDenied) {
		return 0, nil
	}
	return used, err
}

// handleStatus returns the remaining allowance and monitor state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	used, usageErr := s.usage.TodayUsageMinutes(ctx, "", time.Time{})
	breakdown, err := s.ledger.Remaining(ctx, used, usageErr)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute remaining time")
		writeError(w, http.StatusInternalServerError, "Failed to compute remaining time")
		return
	}

	limit, err := s.ledger.DailyLimitMinutes(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read daily limit")
		return
	}
	unlocked, err := s.ledger.UnlockedUntilTomorrow(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read unlock state")
		return
	}
	blocking, err := s.ledger.BlockingEnabled(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read blocking state")
		return
	}

	state, tracked := s.monitor.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"remaining":               breakdown,
		"used_minutes":            used,
		"usage_access":            usageErr == nil,
		"daily_limit_minutes":     limit,
		"unlocked_until_tomorrow": unlocked,
		"blocking_enabled":        blocking,
		"monitor_state":           state.String(),
		"tracked_package":         tracked,
	})
}

// handleSubmit handles dual-purpose lock-screen input.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "Input is required")
		return
	}

	used, err := s.usedMinutes(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read usage for submit")
		writeError(w, http.StatusInternalServerError, "Failed to read usage")
		return
	}

	result, err := s.codes.Submit(r.Context(), req.Input, used)
	if err != nil {
		s.logger.Error().Err(err).Msg("Submit failed")
		writeError(w, http.StatusInternalServerError, "Submit failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRedeem redeems a specific code.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	used, err := s.usedMinutes(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read usage")
		return
	}

	result, err := s.codes.Redeem(r.Context(), req.Code, used)
	if err != nil {
		s.logger.Error().Err(err).Msg("Redeem failed")
		writeError(w, http.StatusInternalServerError, "Redeem failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGenerateCodes replaces the stored codes with a fresh batch.
func (s *Server) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req generateCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grants := req.Grants
	if len(grants) == 0 && req.Count > 0 {
		grants = make([]int, req.Count)
		for i := range grants {
			grants[i] = req.Minutes
		}
	}

	batch, err := s.codes.Generate(r.Context(), grants)
	if err != nil {
		if errors.Is(err, codes.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Failed to generate codes")
		writeError(w, http.StatusInternalServerError, "Failed to generate codes")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"codes": batch,
		"count": len(batch),
	})
}

// handleListCodes returns all stored codes.
func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	all, err := s.codes.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list codes")
		writeError(w, http.StatusInternalServerError, "Failed to list codes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"codes": all,
		"count": len(all),
	})
}

// handleDeleteCode removes a single code.
func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	value := mux.Vars(r)["value"]

	if err := s.codes.Delete(r.Context(), value); err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete code")
		writeError(w, http.StatusInternalServerError, "Failed to delete code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Code deleted successfully",
	})
}

// handleSetLimit updates the daily limit.
func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req setLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ledger.SetDailyLimitMinutes(r.Context(), req.Minutes); err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update daily limit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"daily_limit_minutes": req.Minutes,
	})
}

// handleToggleUnlock flips the unlock-until-tomorrow switch.
func (s *Server) handleToggleUnlock(w http.ResponseWriter, r *http.Request) {
	unlocked, err := s.ledger.ToggleUnlockUntilTomorrow(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to toggle unlock")
		writeError(w, http.StatusInternalServerError, "Failed to toggle unlock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked_until_tomorrow": unlocked,
	})
}

// handleSetBlocking switches enforcement on or off.
func (s *Server) handleSetBlocking(w http.ResponseWriter, r *http.Request) {
	var req setFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.ledger.SetBlockingEnabled(r.Context(), req.Enabled, s.usage.HasPermission())
	if err != nil {
		if errors.Is(err, ledger.ErrPermissionRequired) {
			writeError(w, http.StatusConflict, "Usage access permission required to enable blocking")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update blocking state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocking_enabled": req.Enabled,
	})
}

// handleSetAutostart flips the boot-time arming flag.
func (s *Server) handleSetAutostart(w http.ResponseWriter, r *http.Request) {
	var req setFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ledger.SetAutostartEnabled(r.Context(), req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update autostart state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"autostart_enabled": req.Enabled,
	})
}

// handleSetPin replaces the admin PIN.
func (s *Server) handleSetPin(w http.ResponseWriter, r *http.Request) {
	var req setPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ledger.SetPin(r.Context(), req.Pin); err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update PIN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "PIN updated successfully",
	})
}

// handleForegroundEvent records a pushed foreground sample and triggers an
// immediate enforcement evaluation.
func (s *Server) handleForegroundEvent(w http.ResponseWriter, r *http.Request) {
	var req foregroundEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.recorder.Observe(r.Context(), req.Package); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record foreground sample")
		writeError(w, http.StatusInternalServerError, "Failed to record sample")
		return
	}
	s.monitor.HandleForegroundEvent(r.Context())

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Sample recorded",
	})
}

// handleTodayUsage returns today's per-package foreground usage.
func (s *Server) handleTodayUsage(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	apps, err := s.recorder.QueryForeground(r.Context(), now, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query usage")
		writeError(w, http.StatusInternalServerError, "Failed to query usage")
		return
	}

	type appUsage struct {
		Package string `json:"package"`
		Minutes int    `json:"minutes"`
	}
	out := make([]appUsage, 0, len(apps))
	for _, a := range apps {
		out = append(out, appUsage{Package: a.Package, Minutes: int(a.ForegroundTime / time.Minute)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"apps":  out,
		"count": len(out),
	})
}
