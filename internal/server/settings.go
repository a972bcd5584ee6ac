package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/config"
	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/loot"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// Valuator is the loot analyzer the settings endpoint reconfigures.
type Valuator interface {
	SetSettings(s loot.Settings)
}

// SetValuator makes economy changes reach the loot analyzer.
func (s *Server) SetValuator(v Valuator) {
	s.valuator = v
}

// Fingerprint returns the fingerprint of the live settings.
func (s *Server) Fingerprint() string {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.cfg.Fingerprint()
}

// RunSettings returns a YAML snapshot of the live settings.
func (s *Server) RunSettings() string {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.cfg.RunSettings()
}

// settingsRequest carries the sections to change; omitted sections are kept.
// Player and filters replace the current values. Simulation, economy and pets
// are merged field by field.
type settingsRequest struct {
	Player     *combat.Player        `json:"player"`
	Simulation json.RawMessage       `json:"simulation"`
	Economy    json.RawMessage       `json:"economy"`
	Pets       json.RawMessage       `json:"pets"`
	Filters    *config.FiltersConfig `json:"filters"`
}

type settingsResponse struct {
	Simulation  combat.Options       `json:"simulation"`
	Player      combat.Player        `json:"player"`
	Economy     loot.Settings        `json:"economy"`
	Pets        config.PetsConfig    `json:"pets"`
	Filters     config.FiltersConfig `json:"filters"`
	Fingerprint string               `json:"fingerprint"`
}

// settingsView must be called with settingsMu held
func (s *Server) settingsView() settingsResponse {
	return settingsResponse{
		Simulation:  s.cfg.SimOptions(),
		Player:      s.cfg.Player,
		Economy:     s.cfg.Economy,
		Pets:        s.cfg.Pets,
		Filters:     s.cfg.Filters,
		Fingerprint: s.cfg.Fingerprint(),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.settingsMu.RLock()
	view := s.settingsView()
	s.settingsMu.RUnlock()
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateSettings applies new run inputs to the scheduler and new economy
// settings to the valuator, then revalues the current results without
// simulating again.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var req settingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	// Decode every section first so a bad body changes nothing
	opts := s.cfg.SimOptions()
	if len(req.Simulation) > 0 {
		if err := json.Unmarshal(req.Simulation, &opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid simulation settings")
			return
		}
		if opts.Trials <= 0 || opts.MaxActions <= 0 {
			writeError(w, http.StatusBadRequest, "trials and max_actions must be positive")
			return
		}
	}
	economy := s.cfg.Economy
	if len(req.Economy) > 0 {
		if err := json.Unmarshal(req.Economy, &economy); err != nil {
			writeError(w, http.StatusBadRequest, "invalid economy settings")
			return
		}
	}
	pets := s.cfg.Pets
	if len(req.Pets) > 0 {
		if err := json.Unmarshal(req.Pets, &pets); err != nil {
			writeError(w, http.StatusBadRequest, "invalid pet settings")
			return
		}
	}

	if s.runner.InProgress() {
		writeError(w, http.StatusConflict, simulation.ErrRunInProgress.Error())
		return
	}

	if req.Player != nil {
		if err := s.runner.SetPlayer(*req.Player); err != nil {
			writeSettingsError(w, err)
			return
		}
		s.cfg.Player = *req.Player
	}
	if len(req.Simulation) > 0 {
		if err := s.runner.SetOptions(opts); err != nil {
			writeSettingsError(w, err)
			return
		}
		s.cfg.Simulation.Trials = opts.Trials
		s.cfg.Simulation.MaxActions = opts.MaxActions
		s.cfg.Simulation.ForceFullSim = opts.ForceFullSim
	}
	if req.Filters != nil {
		f := req.Filters
		if err := s.runner.SetFilters(simulation.NewFilters(f.Monsters, f.Dungeons, f.SlayerTiers)); err != nil {
			writeSettingsError(w, err)
			return
		}
		s.cfg.Filters = *f
	}
	s.cfg.Economy = economy
	s.cfg.Pets = pets

	if s.valuator != nil {
		s.valuator.SetSettings(s.cfg.LootSettings())
	}
	if err := s.runner.Reanalyze(); err != nil {
		writeSettingsError(w, err)
		return
	}

	view := s.settingsView()
	logger.Info("Settings updated",
		"fingerprint", view.Fingerprint,
		"client_ip", getRealIP(r))
	writeJSON(w, http.StatusOK, view)
}

func writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, simulation.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, simulation.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("Failed to apply settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply settings")
	}
}
