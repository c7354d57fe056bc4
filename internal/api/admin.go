package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/WallDrop/internal/auth"
	"github.com/dharsanguruparan/WallDrop/internal/queue"
	"github.com/dharsanguruparan/WallDrop/internal/reconcile"
)

type orphanKeys struct {
	Keys []string `json:"keys"`
}

func (s *Server) listOrphans(c *gin.Context) {
	orphans, err := s.Reconciler.Orphans(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orphans": orphans})
}

func (s *Server) publishOrphans(c *gin.Context) {
	var req orphanKeys
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	res, err := s.Reconciler.PublishOrphans(c.Request.Context(), req.Keys)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) deleteOrphans(c *gin.Context) {
	var req orphanKeys
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Keys) == 0 {
		abort(c, http.StatusBadRequest, "invalid_request", "keys must not be empty")
		return
	}
	res, err := s.Reconciler.DeleteOrphans(c.Request.Context(), req.Keys)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type reconcileRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) enqueueReconcile(c *gin.Context) {
	if s.Queue == nil {
		abort(c, http.StatusServiceUnavailable, "queue_unavailable", "background worker is not configured")
		return
	}
	var req reconcileRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	switch req.Mode {
	case "", reconcile.ModeReport, reconcile.ModePublish:
	default:
		abort(c, http.StatusBadRequest, "invalid_request", "mode must be report or publish")
		return
	}
	id, err := queue.EnqueueReconcile(c.Request.Context(), s.Queue, queue.ReconcilePayload{Mode: req.Mode, RequestedBy: auth.User(c)})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": id})
}
