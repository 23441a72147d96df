package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/api/middleware"
	"github.com/GriffinCanCode/termvisor/internal/domain/agentstate"
	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/supervisor"
)

// DefaultReplayLines is used when a replay request names no line count.
const DefaultReplayLines = 50

// SpawnRequest is the body of POST /sessions.
type SpawnRequest struct {
	ID string `json:"id" binding:"required"`
	session.Options
	Tier string `json:"tier,omitempty"`
}

// InputRequest is the body of POST /sessions/:id/input.
type InputRequest struct {
	Data string `json:"data"`
}

// ResizeRequest is the body of POST /sessions/:id/resize. Dimensions are
// floats so that fractional values can be rejected explicitly.
type ResizeRequest struct {
	Cols float64 `json:"cols"`
	Rows float64 `json:"rows"`
}

// TierRequest is the body of POST /sessions/:id/tier.
type TierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// ReplayRequest is the optional body of POST /sessions/:id/replay.
type ReplayRequest struct {
	MaxLines int `json:"max_lines"`
}

// StateRequest is the body of POST /sessions/:id/state.
type StateRequest struct {
	Event      string   `json:"event" binding:"required"`
	Trigger    string   `json:"trigger,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Message    string   `json:"message,omitempty"`
	Token      int64    `json:"token,omitempty"`
}

// NamespaceRequest is the body of PUT /namespace.
type NamespaceRequest struct {
	Namespace string `json:"namespace"`
}

// ListSessions lists every live session
func (h *Handlers) ListSessions(c *gin.Context) {
	snaps := h.sessions.GetAllSnapshots()
	if snaps == nil {
		snaps = []session.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": snaps,
		"count":    len(snaps),
	})
}

// SpawnSession starts a session
func (h *Handlers) SpawnSession(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid spawn request: "+err.Error())
		return
	}

	opts := req.Options
	if req.Tier != "" {
		tier, err := flow.ParseTier(req.Tier)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		opts.Tier = tier
	}
	if opts.TraceID == "" {
		opts.TraceID = middleware.TraceID(c)
	}

	if err := h.sessions.Spawn(c.Request.Context(), req.ID, opts); err != nil {
		failErr(c, err)
		return
	}

	snap, ok := h.sessions.GetSnapshot(req.ID)
	if !ok {
		// Exited before we could look at it.
		c.JSON(http.StatusCreated, gin.H{"success": true, "id": req.ID})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": req.ID, "session": snap})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	snap, ok := h.sessions.GetSnapshot(c.Param("id"))
	if !ok {
		failErr(c, supervisor.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// KillSession tears a session down. The optional reason query parameter is
// reported with the exit notification.
func (h *Handlers) KillSession(c *gin.Context) {
	id := c.Param("id")
	reason := c.DefaultQuery("reason", "api")
	if err := h.sessions.Kill(id, reason); err != nil {
		failErr(c, err)
		return
	}
	h.logger.Info("Session killed via API", zap.String("session_id", id), zap.String("reason", reason))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WriteInput sends input to a session
func (h *Handlers) WriteInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid input request")
		return
	}
	if err := h.sessions.Write(c.Param("id"), []byte(req.Data), middleware.TraceID(c)); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bytes": len(req.Data)})
}

// ResizeSession changes a session's terminal size
func (h *Handlers) ResizeSession(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid resize request")
		return
	}
	cols, rows, err := supervisor.ValidateDimensions(req.Cols, req.Rows)
	if err != nil {
		failErr(c, err)
		return
	}
	if err := h.sessions.Resize(c.Param("id"), cols, rows); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cols": cols, "rows": rows})
}

// SetTier changes a session's delivery tier
func (h *Handlers) SetTier(c *gin.Context) {
	var req TierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid tier request")
		return
	}
	tier, err := flow.ParseTier(req.Tier)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sessions.SetDeliveryTier(c.Param("id"), tier); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tier": tier.String()})
}

// TrashSession soft-deletes a session
func (h *Handlers) TrashSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Trash(id); err != nil {
		failErr(c, err)
		return
	}
	resp := gin.H{"success": true}
	if snap, ok := h.sessions.GetSnapshot(id); ok && snap.TrashExpires != nil {
		resp["expires_at"] = snap.TrashExpires
	}
	c.JSON(http.StatusOK, resp)
}

// RestoreSession takes a session out of the trash
func (h *Handlers) RestoreSession(c *gin.Context) {
	restored := h.sessions.Restore(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true, "restored": restored})
}

// ReplayHistory re-sends recent output of a session to subscribers
func (h *Handlers) ReplayHistory(c *gin.Context) {
	var req ReplayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid replay request")
			return
		}
	}
	if req.MaxLines <= 0 {
		req.MaxLines = DefaultReplayLines
	}
	if err := h.sessions.ReplayHistory(c.Param("id"), req.MaxLines); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TransitionState applies an externally observed agent state change
func (h *Handlers) TransitionState(c *gin.Context) {
	var req StateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid state request")
		return
	}
	event, err := agentstate.ParseEvent(req.Event)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	trigger, err := agentstate.ParseTrigger(req.Trigger)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	accepted := h.sessions.TransitionState(c.Param("id"), supervisor.Transition{
		Event:      event,
		Trigger:    trigger,
		Confidence: req.Confidence,
		Message:    req.Message,
		Token:      req.Token,
	})
	if !accepted {
		fail(c, http.StatusConflict, "session not found or token is stale")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkChecked records that a consumer looked at a session
func (h *Handlers) MarkChecked(c *gin.Context) {
	if err := h.sessions.MarkChecked(c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetNamespace limits streamed output to one namespace
func (h *Handlers) SetNamespace(c *gin.Context) {
	var req NamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid namespace request")
		return
	}
	if err := h.sessions.SetNamespaceFilter(req.Namespace); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "namespace": req.Namespace})
}

// ListNamespace lists the session ids in a namespace
func (h *Handlers) ListNamespace(c *gin.Context) {
	ids := h.sessions.ForNamespace(c.Param("ns"))
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"namespace": c.Param("ns"), "sessions": ids})
}
