package api

import (
	"errors"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
	"github.com/dharsanguruparan/WallDrop/internal/pipeline"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Fields  []validate.FieldError `json:"fields,omitempty"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: message})
}

// respondError maps domain errors to HTTP responses.
func (s *Server) respondError(c *gin.Context, err error) {
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: err.Error(), Fields: ve.Fields})
		return
	}
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, pipeline.ErrSessionNotFound),
		errors.Is(err, pipeline.ErrItemNotFound),
		errors.Is(err, pipeline.ErrNoPendingMatch),
		errors.Is(err, objectstore.ErrNotFound):
		abort(c, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, catalog.ErrConfirmationMismatch),
		errors.Is(err, metadata.ErrMissingColumns):
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, validate.ErrImportRejected):
		abort(c, http.StatusUnprocessableEntity, "import_rejected", err.Error())
		return
	case errors.Is(err, pipeline.ErrDrainInProgress),
		errors.Is(err, pipeline.ErrPublishInProgress),
		errors.Is(err, pipeline.ErrInvalidTransition):
		abort(c, http.StatusConflict, "conflict", err.Error())
		return
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		s.logger.Error("upstream error", zap.String("code", apiErr.ErrorCode()), zap.String("path", c.FullPath()), zap.Error(err))
		abort(c, http.StatusBadGateway, "upstream_error", apiErr.ErrorCode())
		return
	}
	s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	abort(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

// bindJSON decodes the body into out, writing a 400 on failure.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	return true
}
