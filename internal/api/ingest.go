package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/pipeline"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// session resolves :id, writing a 404 when unknown.
func (s *Server) session(c *gin.Context) (*pipeline.Session, bool) {
	sess, err := s.Sessions.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return sess, true
}

type sessionView struct {
	pipeline.Stats
	Items          []model.QueuedItem `json:"items"`
	PendingMatches []metadata.Match   `json:"pendingMatches"`
}

func view(sess *pipeline.Session) sessionView {
	return sessionView{Stats: sess.Stats(), Items: sess.Items(), PendingMatches: sess.PendingMatches()}
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions.List()})
}

func (s *Server) createSession(c *gin.Context) {
	sess := s.Sessions.Create()
	c.Header("Location", "/ingest/sessions/"+sess.ID)
	c.JSON(http.StatusCreated, view(sess))
}

func (s *Server) getSession(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		c.JSON(http.StatusOK, view(sess))
	}
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.Sessions.Close(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addFiles(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxRequestBytes)
	form, err := c.MultipartForm()
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_multipart", err.Error())
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		abort(c, http.StatusBadRequest, "invalid_multipart", "no files in field \"files\"")
		return
	}
	files := make([]model.SourceFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid_multipart", err.Error())
			return
		}
		files = append(files, f)
	}
	results := sess.Add(files)
	c.JSON(http.StatusOK, gin.H{"results": results, "items": sess.Items()})
}

func readPart(fh *multipart.FileHeader) (model.SourceFile, error) {
	rc, err := fh.Open()
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return model.SourceFile{Name: fh.Filename, Size: int64(len(data)), MimeType: mimeType, Data: data}, nil
}

func (s *Server) updateItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var md model.Metadata
	if !bindJSON(c, &md) {
		return
	}
	item, err := sess.UpdateMetadata(c.Param("item"), md)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) removeItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Remove(c.Param("item")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type confirmRequest struct {
	Accept *bool `json:"accept"`
}

func (s *Server) confirmMatch(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	accept := true
	if c.Request.ContentLength > 0 {
		var req confirmRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Accept != nil {
			accept = *req.Accept
		}
	}
	item, err := sess.ConfirmPartial(c.Param("item"), accept)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) cancelItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Cancel(c.Param("item")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) retryItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	item, err := sess.Retry(c.Request.Context(), c.Param("item"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) applyShared(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var shared metadata.Shared
	if !bindJSON(c, &shared) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sess.ApplyShared(shared)})
}

func (s *Server) importMetadata(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_multipart", err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_multipart", err.Error())
		return
	}
	defer f.Close()
	rows, err := metadata.Parse(fh.Filename, f)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var mode validate.ImportMode
	if raw := c.Query("mode"); raw != "" {
		mode = validate.ParseImportMode(raw)
	}
	res, err := sess.ImportRows(c.Request.Context(), rows, mode)
	if err != nil {
		if errors.Is(err, validate.ErrImportRejected) {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "import_rejected",
				"message":    err.Error(),
				"validation": res.Validation,
			})
			return
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// startUpload drains the queue in the background unless wait=true.
func (s *Server) startUpload(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if c.Query("wait") == "true" {
		summary, err := sess.Upload(c.Request.Context())
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
		return
	}
	if sess.Stats().Draining {
		s.respondError(c, pipeline.ErrDrainInProgress)
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := sess.Upload(ctx); err != nil {
			s.logger.Warn("background upload not started", zap.String("session", sess.ID), zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) cancelAll(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": sess.CancelAll()})
}

func (s *Server) unpublished(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	pending := sess.Unpublished()
	if pending == nil {
		pending = []model.UnpublishedUpload{}
	}
	c.JSON(http.StatusOK, gin.H{"unpublished": pending})
}

func (s *Server) publish(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	res, err := sess.Publish(c.Request.Context())
	if err != nil {
		if res.Published > 0 {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"error":   "publish_incomplete",
				"message": err.Error(),
				"result":  res,
			})
			return
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) clearPublished(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": sess.ClearPublished()})
}

// events streams session events as server-sent events until the client
// disconnects or the session closes.
func (s *Server) events(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	ch, stop := sess.Events(128)
	defer stop()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", view(sess))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent(e.Type, e)
			return true
		}
	})
}
