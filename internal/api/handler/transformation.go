package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laellekoenig/tables/internal/api/middleware"
	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/Laellekoenig/tables/internal/service"
	"github.com/gin-gonic/gin"
)

// TransformationHandler handles transformation lifecycle endpoints.
type TransformationHandler struct {
	transformationService *service.TransformationService
	progressService       *service.ProgressService
}

// NewTransformationHandler creates a new transformation handler.
// Parameters:
//   - transformationService: orchestrator instance.
//   - progressService: progress notifier instance.
// Returns:
//   - *TransformationHandler: initialized handler.
func NewTransformationHandler(transformationService *service.TransformationService, progressService *service.ProgressService) *TransformationHandler {
	return &TransformationHandler{
		transformationService: transformationService,
		progressService:       progressService,
	}
}

// CreateTransformationRequest is the payload for creating a transformation.
type CreateTransformationRequest struct {
	Prompt   string  `json:"prompt"`
	ParentID *string `json:"parentId"`
}

// TransformRequest is the payload for the composite submission endpoint.
type TransformRequest struct {
	ProjectID string  `json:"projectId"`
	Prompt    string  `json:"prompt"`
	ParentID  *string `json:"parentId"`
}

// TransformationResponse is the wire representation of a transformation.
type TransformationResponse struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	ParentID       *string    `json:"parentId"`
	Prompt         string     `json:"prompt"`
	CodeSnippet    *string    `json:"codeSnippet"`
	OutputCsv      *string    `json:"outputCsv"`
	Status         string     `json:"status"`
	Phase          string     `json:"phase"`
	ErrorMessage   *string    `json:"errorMessage"`
	LastExecutedAt *time.Time `json:"lastExecutedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TransformationTreeResponse is one node of the transformation forest.
type TransformationTreeResponse struct {
	TransformationResponse
	Children []TransformationTreeResponse `json:"children"`
}

func toTransformationResponse(t *domain.Transformation) TransformationResponse {
	return TransformationResponse{
		ID:             t.ID,
		ProjectID:      t.ProjectID,
		ParentID:       t.ParentID,
		Prompt:         t.Prompt,
		CodeSnippet:    t.CodeSnippet,
		OutputCsv:      t.OutputCsv,
		Status:         string(t.Status),
		Phase:          t.PhaseLabel(),
		ErrorMessage:   t.ErrorMessage,
		LastExecutedAt: t.LastExecutedAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toTreeResponse(nodes []*domain.TransformationTree) []TransformationTreeResponse {
	out := make([]TransformationTreeResponse, 0, len(nodes))
	for _, n := range nodes {
		node := n.Node
		out = append(out, TransformationTreeResponse{
			TransformationResponse: toTransformationResponse(&node),
			Children:               toTreeResponse(n.Children),
		})
	}
	return out
}

// Transform handles POST /api/v1/transform: create, generate, and execute
// in one call, returning the final state of the new transformation.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) Transform(c *gin.Context) {
	var req TransformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project ID is required."})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required."})
		return
	}

	ctx := logger.SetProjectID(c.Request.Context(), req.ProjectID)
	t, err := h.transformationService.CreateAndExecute(ctx, middleware.UserID(c), req.ProjectID, req.ParentID, req.Prompt, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransformationResponse(t))
}

// CreateTransformation handles POST /api/v1/projects/:id/transformations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) CreateTransformation(c *gin.Context) {
	var req CreateTransformationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required."})
		return
	}

	t, err := h.transformationService.Create(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.ParentID, req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toTransformationResponse(t))
}

// ListTransformations handles GET /api/v1/projects/:id/transformations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) ListTransformations(c *gin.Context) {
	rows, err := h.transformationService.List(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TransformationResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toTransformationResponse(&rows[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"transformations": out,
		"total":           len(out),
	})
}

// GetTransformationTree handles GET /api/v1/projects/:id/transformations/tree.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) GetTransformationTree(c *gin.Context) {
	forest, err := h.transformationService.Tree(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tree": toTreeResponse(forest),
	})
}

// GetTransformation handles GET /api/v1/projects/:id/transformations/:tid.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) GetTransformation(c *gin.Context) {
	t, err := h.transformationService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransformationResponse(t))
}

// GenerateCode handles POST /api/v1/projects/:id/transformations/:tid/generate.
// Clients that accept text/event-stream get the code incrementally as
// cumulative "code" events followed by a final "done" event; everyone else
// gets the finished row as JSON.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON or streams SSE response).
func (h *TransformationHandler) GenerateCode(c *gin.Context) {
	ctx := logger.SetTransformationID(c.Request.Context(), c.Param("tid"))

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.generateCodeStream(c, ctx)
		return
	}

	t, err := h.transformationService.GenerateCode(ctx, middleware.UserID(c), c.Param("id"), c.Param("tid"), nil)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransformationResponse(t))
}

func (h *TransformationHandler) generateCodeStream(c *gin.Context, ctx context.Context) {
	// Verify visibility before committing to a stream response.
	if _, err := h.transformationService.Get(ctx, middleware.UserID(c), c.Param("id"), c.Param("tid")); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	onDelta := func(code string) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		c.SSEvent("code", gin.H{"code": code})
		c.Writer.Flush()
		return nil
	}

	t, err := h.transformationService.GenerateCode(ctx, middleware.UserID(c), c.Param("id"), c.Param("tid"), onDelta)
	if err != nil {
		// Headers are already committed to the stream; failures go out as
		// an error event rather than a status code.
		c.SSEvent("error", gin.H{"error": err.Error()})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", toTransformationResponse(t))
	c.Writer.Flush()
}

// RunTransformation handles POST /api/v1/projects/:id/transformations/:tid/run.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) RunTransformation(c *gin.Context) {
	ctx := logger.SetTransformationID(c.Request.Context(), c.Param("tid"))
	t, err := h.transformationService.Run(ctx, middleware.UserID(c), c.Param("id"), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransformationResponse(t))
}

// DeclineTransformation handles POST /api/v1/projects/:id/transformations/:tid/decline.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) DeclineTransformation(c *gin.Context) {
	t, err := h.transformationService.Decline(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransformationResponse(t))
}

// DeleteTransformation handles DELETE /api/v1/projects/:id/transformations/:tid.
// The transformation's entire subtree is removed with it.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) DeleteTransformation(c *gin.Context) {
	if err := h.transformationService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("tid")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteAllTransformations handles DELETE /api/v1/projects/:id/transformations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TransformationHandler) DeleteAllTransformations(c *gin.Context) {
	deleted, err := h.transformationService.DeleteAllForProject(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": deleted,
	})
}

// StreamProgress handles GET /api/v1/projects/:id/transformations/:tid/progress.
// Events are delivered as server-sent events until the transformation
// reaches a terminal state or the client disconnects.
// Parameters:
//   - c: Gin request context.
// Returns: none (streams SSE response).
func (h *TransformationHandler) StreamProgress(c *gin.Context) {
	h.streamProgress(c, c.Param("id"), c.Param("tid"))
}

// StreamProgressByQuery handles GET /api/v1/transformation-progress with
// transformationId and projectId query parameters. EventSource clients
// that cannot build path-parameter URLs use this form.
// Parameters:
//   - c: Gin request context.
// Returns: none (streams SSE response).
func (h *TransformationHandler) StreamProgressByQuery(c *gin.Context) {
	projectID := c.Query("projectId")
	transformationID := c.Query("transformationId")
	if projectID == "" || transformationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameters 'transformationId' and 'projectId' are required.",
		})
		return
	}
	h.streamProgress(c, projectID, transformationID)
}

func (h *TransformationHandler) streamProgress(c *gin.Context, projectID, transformationID string) {
	// Verify visibility before committing to a stream response.
	if _, err := h.transformationService.Get(c.Request.Context(), middleware.UserID(c), projectID, transformationID); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := h.progressService.Watch(c.Request.Context(), transformationID, projectID)

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(ev.Type, ev)
		return true
	})
}
