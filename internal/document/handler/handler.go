package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lorekeep/lorekeep/internal/document"
	"github.com/lorekeep/lorekeep/internal/document/service"
	"github.com/lorekeep/lorekeep/pkg/middleware"
)

// RegisterDocumentRoutes mounts the tenant-scoped document CRUD endpoints.
// All routes require a verified access token; the tenant comes from the
// token claims, never from the request.
func RegisterDocumentRoutes(r *gin.Engine, svc service.Service, auth gin.HandlerFunc) {
	grp := r.Group("/api/documents", auth)

	grp.GET("", func(c *gin.Context) {
		claims := middleware.ClaimsFrom(c)
		list, err := svc.List(claims.TenantID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list documents"})
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			out = append(out, gin.H{
				"id": d.ID, "title": d.Title, "source": d.Source,
				"tags": d.Tags, "updated_at": d.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "documents": out})
	})

	grp.POST("", func(c *gin.Context) {
		claims := middleware.ClaimsFrom(c)
		var req struct {
			Title     string   `json:"title" binding:"required"`
			Content   string   `json:"content"`
			Source    string   `json:"source"`
			SourceRef string   `json:"source_ref"`
			Tags      []string `json:"tags"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		if req.Source == "" {
			req.Source = "manual"
		}
		d := &document.Document{
			TenantID:  claims.TenantID,
			Title:     req.Title,
			Content:   req.Content,
			Source:    req.Source,
			SourceRef: req.SourceRef,
			Tags:      req.Tags,
		}
		id, err := svc.Create(d)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to create document"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "document": d, "id": id})
	})

	grp.GET("/:id", func(c *gin.Context) {
		claims := middleware.ClaimsFrom(c)
		d, err := svc.Get(claims.TenantID, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Document not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "document": d})
	})

	grp.PATCH("/:id", func(c *gin.Context) {
		claims := middleware.ClaimsFrom(c)
		var req struct {
			Title   *string   `json:"title"`
			Content *string   `json:"content"`
			Tags    *[]string `json:"tags"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		u := document.Update{Title: req.Title, Content: req.Content, Tags: req.Tags}
		if err := svc.Update(claims.TenantID, c.Param("id"), u); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Document not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "id": c.Param("id")})
	})

	grp.DELETE("/:id", func(c *gin.Context) {
		claims := middleware.ClaimsFrom(c)
		if err := svc.Delete(claims.TenantID, c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Document not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
