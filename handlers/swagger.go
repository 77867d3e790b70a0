package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>lorekeep - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document covering the main API surface.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "lorekeep", "version": "v0.1.0" },
  "paths": {
    "/api/auth/signup": {
      "post": { "summary": "Register a user and provision a tenant", "responses": { "201": { "description": "user, tenant and tokens" }, "400": { "description": "validation failure" } } }
    },
    "/api/auth/login": {
      "post": { "summary": "Authenticate with email and password", "responses": { "200": { "description": "user, tenant and tokens" }, "401": { "description": "invalid credentials" }, "423": { "description": "account locked" }, "403": { "description": "tenant inactive" } } }
    },
    "/api/auth/refresh": {
      "post": { "summary": "Rotate the refresh token", "responses": { "200": { "description": "new token pair" }, "401": { "description": "invalid refresh token" } } }
    },
    "/api/auth/logout": {
      "post": { "summary": "Revoke the session", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/auth/me": {
      "get": { "summary": "Current user and tenant", "responses": { "200": { "description": "user and tenant" } } }
    },
    "/api/auth/password": {
      "put": { "summary": "Change password", "responses": { "200": { "description": "password changed" } } }
    },
    "/api/documents": {
      "get": { "summary": "List knowledge-base documents", "responses": { "200": { "description": "document list" } } },
      "post": { "summary": "Create a document", "responses": { "201": { "description": "created document" } } }
    },
    "/api/sync-progress/{syncId}": {
      "get": { "summary": "Current sync progress snapshot", "responses": { "200": { "description": "progress" }, "404": { "description": "unknown sync" } } }
    },
    "/api/sync-progress/{syncId}/stream": {
      "get": { "summary": "Server-sent progress event stream (?token= auth)", "responses": { "200": { "description": "text/event-stream" } } }
    },
    "/api/sync-progress/{syncId}/notify": {
      "post": { "summary": "Email me when this sync finishes", "responses": { "200": { "description": "registered" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
