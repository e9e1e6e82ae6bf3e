// Package api serves the tracker's pose, status and rig profiles as JSON
// and registers live tracker values on the tsweb debug page.
package api

import (
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/httputil"
	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/rigdb"
	"github.com/banshee-data/optotrak/internal/tracker"
)

// PoseSource is the part of *tracker.Tracker the API reads and writes.
type PoseSource interface {
	Estimate() pose.Pose
	SetVisible(v bool)
	Status() tracker.StatusEvent
	Stats() tracker.Stats
	SessionID() string
}

// RigStore is the part of *rigdb.DB the rig endpoints use.
type RigStore interface {
	GetRigConfigs() ([]rigdb.RigConfig, error)
	GetRigConfig(id int) (*rigdb.RigConfig, error)
	CreateRigConfig(c *rigdb.RigConfig) (int64, error)
	UpdateRigConfig(c *rigdb.RigConfig) error
	DeleteRigConfig(id int) error
}

type Server struct {
	tracker PoseSource
	rigs    RigStore
}

// NewServer returns a Server. rigs may be nil, in which case the rig
// endpoints are not registered.
func NewServer(t PoseSource, rigs RigStore) *Server {
	return &Server{tracker: t, rigs: rigs}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pose", s.showPose)
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("PUT /api/visible", s.setVisible)
	if s.rigs != nil {
		mux.HandleFunc("GET /api/rigs", s.listRigs)
		mux.HandleFunc("POST /api/rigs", s.createRig)
		mux.HandleFunc("GET /api/rigs/{id}", s.getRig)
		mux.HandleFunc("PUT /api/rigs/{id}", s.updateRig)
		mux.HandleFunc("DELETE /api/rigs/{id}", s.deleteRig)
	}
	return mux
}

// AttachDebugRoutes adds live tracker values to the tsweb debug page.
func (s *Server) AttachDebugRoutes(debug *tsweb.DebugHandler) {
	debug.KV("Session", s.tracker.SessionID())
	debug.KVFunc("State", func() any { return s.tracker.Status().State.String() })
	debug.KVFunc("Packets received", func() any { return s.tracker.Stats().PacketsReceived })
	debug.KVFunc("Packets dropped", func() any { return s.tracker.Stats().PacketsDropped })
	debug.KVFunc("Invisible samples", func() any { return s.tracker.Stats().SamplesInvisible })
	debug.KVFunc("Reconnects", func() any { return s.tracker.Stats().Reconnects })
	debug.KVFunc("Position", func() any {
		p := s.tracker.Estimate().Position
		return geom.Components(p)
	})
	debug.Handle("pose", "Current pose as JSON", http.HandlerFunc(s.showPose))
}

// Vec3 is the JSON form of a point.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func vec3(p geom.Point3) Vec3 {
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// PoseResponse is returned by GET /api/pose. Angles are radians; matrices
// are row-major 4x4.
type PoseResponse struct {
	MarkerA     Vec3        `json:"marker_a"`
	MarkerB     Vec3        `json:"marker_b"`
	MarkerC     Vec3        `json:"marker_c"`
	Visible     bool        `json:"visible"`
	Seq         uint64      `json:"seq"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
	Position    Vec3        `json:"position"`
	Normal      Vec3        `json:"normal"`
	Yaw         float64     `json:"yaw"`
	Pitch       float64     `json:"pitch"`
	Roll        float64     `json:"roll"`
	Rotation    [16]float64 `json:"rotation"`
	Translation [16]float64 `json:"translation"`
}

func newPoseResponse(p pose.Pose) PoseResponse {
	resp := PoseResponse{
		MarkerA:     vec3(p.MarkerA),
		MarkerB:     vec3(p.MarkerB),
		MarkerC:     vec3(p.MarkerC),
		Visible:     p.Visible,
		Seq:         p.Seq,
		Position:    vec3(p.Position),
		Normal:      vec3(p.Normal),
		Yaw:         p.Yaw,
		Pitch:       p.Pitch,
		Roll:        p.Roll,
		Rotation:    p.Rotation,
		Translation: p.Translation,
	}
	if !p.UpdatedAt.IsZero() {
		at := p.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, newPoseResponse(s.tracker.Estimate()))
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State     string        `json:"state"`
	Attempt   int           `json:"attempt,omitempty"`
	Error     string        `json:"error,omitempty"`
	Since     time.Time     `json:"since"`
	SessionID string        `json:"session_id"`
	Stats     tracker.Stats `json:"stats"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Status()
	resp := StatusResponse{
		State:     st.State.String(),
		Attempt:   st.Attempt,
		Since:     st.At,
		SessionID: s.tracker.SessionID(),
		Stats:     s.tracker.Stats(),
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	httputil.WriteJSONOK(w, resp)
}

// VisibleRequest is the body of PUT /api/visible.
type VisibleRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) setVisible(w http.ResponseWriter, r *http.Request) {
	var req VisibleRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Visible == nil {
		httputil.BadRequest(w, "visible is required")
		return
	}
	s.tracker.SetVisible(*req.Visible)
	monitoring.Logf("visibility flag set to %t", *req.Visible)
	httputil.WriteJSONOK(w, map[string]bool{"visible": *req.Visible})
}
