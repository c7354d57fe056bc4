package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/auth"
	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

func (s *Server) listCatalog(c *gin.Context) {
	var q catalog.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}
	page, err := s.Catalog.List(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getWallpaper(c *gin.Context) {
	doc, err := s.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) listCategories(c *gin.Context) {
	set, err := s.Categories.Snapshot(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": set.Options()})
}

func (s *Server) createWallpaper(c *gin.Context) {
	var in validate.CatalogInput
	if !bindJSON(c, &in) {
		return
	}
	doc, err := s.Catalog.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Location", "/catalog/"+doc.ID)
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) updateWallpaper(c *gin.Context) {
	var in validate.CatalogInput
	if !bindJSON(c, &in) {
		return
	}
	doc, err := s.Catalog.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteWallpaper(c *gin.Context) {
	if err := s.Catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type deleteAllRequest struct {
	Confirm string `json:"confirm"`
}

func (s *Server) deleteAllWallpapers(c *gin.Context) {
	var req deleteAllRequest
	if !bindJSON(c, &req) {
		return
	}
	n, err := s.Catalog.DeleteAll(c.Request.Context(), req.Confirm)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Warn("catalog wipe requested", zap.String("user", auth.User(c)), zap.Int("deleted", n))
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) exportCatalog(c *gin.Context) {
	var buf bytes.Buffer
	if _, err := s.Catalog.ExportXLSX(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err)
		return
	}
	name := fmt.Sprintf("wallpapers-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) template(c *gin.Context) {
	if strings.EqualFold(c.Query("format"), "xlsx") {
		data, err := metadata.TemplateXLSX()
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="wallpaper-metadata.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="wallpaper-metadata.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", metadata.TemplateCSV())
}
