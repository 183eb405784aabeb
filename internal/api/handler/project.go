package handler

import (
	"net/http"
	"time"

	"github.com/Laellekoenig/tables/internal/api/middleware"
	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/service"
	"github.com/gin-gonic/gin"
)

// ProjectHandler handles project CRUD endpoints.
type ProjectHandler struct {
	projectService *service.ProjectService
}

// NewProjectHandler creates a new project handler.
// Parameters:
//   - projectService: project service instance.
// Returns:
//   - *ProjectHandler: initialized handler.
func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
	}
}

// CreateProjectRequest is the payload for POST /api/v1/projects.
type CreateProjectRequest struct {
	Name       string `json:"name"`
	CSVContent string `json:"csvContent"`
}

// ProjectResponse is the full project representation including the CSV.
type ProjectResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CSVContent string    `json:"csvContent"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProjectSummary is the list representation; the CSV document is omitted
// to keep list responses small.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CSVSize   int       `json:"csvSize"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toProjectResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:         p.ID,
		Name:       p.Name,
		CSVContent: p.CSVContent,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// CreateProject handles POST /api/v1/projects.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	p, err := h.projectService.Create(c.Request.Context(), middleware.UserID(c), req.Name, req.CSVContent)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toProjectResponse(p))
}

// GetProject handles GET /api/v1/projects/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.projectService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProjectResponse(p))
}

// ListProjects handles GET /api/v1/projects.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projectService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, ProjectSummary{
			ID:        p.ID,
			Name:      p.Name,
			CSVSize:   len(p.CSVContent),
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"projects": summaries,
		"total":    len(summaries),
	})
}

// DeleteProject handles DELETE /api/v1/projects/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.projectService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
