package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/optotrak/internal/httputil"
	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/rigdb"
	"github.com/banshee-data/optotrak/internal/tracker"
)

// RigConfigRequest is the body for creating or replacing a rig profile.
// Zero UDPPort and VisibilityThreshold take the defaults.
type RigConfigRequest struct {
	Name                string  `json:"name"`
	UDPPort             int     `json:"udp_port"`
	OffsetX             float64 `json:"offset_x"`
	OffsetY             float64 `json:"offset_y"`
	OffsetZ             float64 `json:"offset_z"`
	Mode                string  `json:"mode"`
	VisibilityThreshold float64 `json:"visibility_threshold"`
	Description         string  `json:"description"`
}

func (req *RigConfigRequest) toRigConfig() (*rigdb.RigConfig, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	if req.UDPPort < 0 || req.UDPPort > 65535 {
		return nil, errors.New("udp_port must be in 0..65535")
	}
	mode, err := tracker.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.VisibilityThreshold < 0 {
		return nil, errors.New("visibility_threshold must not be negative")
	}

	c := &rigdb.RigConfig{
		Name:                name,
		UDPPort:             req.UDPPort,
		OffsetX:             req.OffsetX,
		OffsetY:             req.OffsetY,
		OffsetZ:             req.OffsetZ,
		Mode:                mode.String(),
		VisibilityThreshold: req.VisibilityThreshold,
		Description:         req.Description,
	}
	if c.UDPPort == 0 {
		c.UDPPort = tracker.DefaultPort
	}
	if c.VisibilityThreshold == 0 {
		c.VisibilityThreshold = pose.DefaultVisibilityThreshold
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

func rigID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid rig ID")
		return 0, false
	}
	return id, true
}

// listRigs handles GET /api/rigs
func (s *Server) listRigs(w http.ResponseWriter, r *http.Request) {
	rigs, err := s.rigs.GetRigConfigs()
	if err != nil {
		monitoring.Logf("Error fetching rig configs: %v", err)
		httputil.InternalServerError(w, "failed to fetch rig profiles")
		return
	}
	httputil.WriteJSONOK(w, rigs)
}

// getRig handles GET /api/rigs/{id}
func (s *Server) getRig(w http.ResponseWriter, r *http.Request) {
	id, ok := rigID(w, r)
	if !ok {
		return
	}
	c, err := s.rigs.GetRigConfig(id)
	if err != nil {
		monitoring.Logf("Error fetching rig config %d: %v", id, err)
		httputil.InternalServerError(w, "failed to fetch rig profile")
		return
	}
	if c == nil {
		httputil.NotFound(w, "rig profile not found")
		return
	}
	httputil.WriteJSONOK(w, c)
}

// createRig handles POST /api/rigs
func (s *Server) createRig(w http.ResponseWriter, r *http.Request) {
	var req RigConfigRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c, err := req.toRigConfig()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	id, err := s.rigs.CreateRigConfig(c)
	if isUniqueViolation(err) {
		httputil.Conflict(w, "a rig profile with that name already exists")
		return
	}
	if err != nil {
		monitoring.Logf("Error creating rig config: %v", err)
		httputil.InternalServerError(w, "failed to create rig profile")
		return
	}

	created, err := s.rigs.GetRigConfig(int(id))
	if err != nil || created == nil {
		monitoring.Logf("Error reading back rig config %d: %v", id, err)
		httputil.InternalServerError(w, "failed to read created rig profile")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// updateRig handles PUT /api/rigs/{id}
func (s *Server) updateRig(w http.ResponseWriter, r *http.Request) {
	id, ok := rigID(w, r)
	if !ok {
		return
	}
	var req RigConfigRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c, err := req.toRigConfig()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c.ID = id

	err = s.rigs.UpdateRigConfig(c)
	switch {
	case errors.Is(err, rigdb.ErrNotFound):
		httputil.NotFound(w, "rig profile not found")
		return
	case isUniqueViolation(err):
		httputil.Conflict(w, "a rig profile with that name already exists")
		return
	case err != nil:
		monitoring.Logf("Error updating rig config %d: %v", id, err)
		httputil.InternalServerError(w, "failed to update rig profile")
		return
	}

	updated, err := s.rigs.GetRigConfig(id)
	if err != nil || updated == nil {
		httputil.InternalServerError(w, "failed to read updated rig profile")
		return
	}
	httputil.WriteJSONOK(w, updated)
}

// deleteRig handles DELETE /api/rigs/{id}
func (s *Server) deleteRig(w http.ResponseWriter, r *http.Request) {
	id, ok := rigID(w, r)
	if !ok {
		return
	}
	err := s.rigs.DeleteRigConfig(id)
	if errors.Is(err, rigdb.ErrNotFound) {
		httputil.NotFound(w, "rig profile not found")
		return
	}
	if err != nil {
		monitoring.Logf("Error deleting rig config %d: %v", id, err)
		httputil.InternalServerError(w, "failed to delete rig profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
