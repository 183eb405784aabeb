package api

import (
	"github.com/Laellekoenig/tables/internal/api/handler"
	"github.com/Laellekoenig/tables/internal/api/middleware"
	"github.com/Laellekoenig/tables/internal/config"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/Laellekoenig/tables/internal/service"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	projectService *service.ProjectService,
	transformationService *service.TransformationService,
	progressService *service.ProgressService,
	auth middleware.Authenticator,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.Server.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	projectHandler := handler.NewProjectHandler(projectService)
	transformationHandler := handler.NewTransformationHandler(transformationService, progressService)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes (all authenticated)
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RequireAuth(auth))
	{
		// Composite submission: create + generate + execute
		v1.POST("/transform", transformationHandler.Transform)

		// Live progress feed (query-parameter form for EventSource clients)
		v1.GET("/transformation-progress", transformationHandler.StreamProgressByQuery)

		// Projects
		v1.POST("/projects", projectHandler.CreateProject)
		v1.GET("/projects", projectHandler.ListProjects)
		v1.GET("/projects/:id", projectHandler.GetProject)
		v1.DELETE("/projects/:id", projectHandler.DeleteProject)

		// Transformations
		v1.POST("/projects/:id/transformations", transformationHandler.CreateTransformation)
		v1.GET("/projects/:id/transformations", transformationHandler.ListTransformations)
		v1.DELETE("/projects/:id/transformations", transformationHandler.DeleteAllTransformations)
		v1.GET("/projects/:id/transformations/tree", transformationHandler.GetTransformationTree)
		v1.GET("/projects/:id/transformations/:tid", transformationHandler.GetTransformation)
		v1.DELETE("/projects/:id/transformations/:tid", transformationHandler.DeleteTransformation)
		v1.POST("/projects/:id/transformations/:tid/generate", transformationHandler.GenerateCode)
		v1.POST("/projects/:id/transformations/:tid/run", transformationHandler.RunTransformation)
		v1.POST("/projects/:id/transformations/:tid/decline", transformationHandler.DeclineTransformation)
		v1.GET("/projects/:id/transformations/:tid/progress", transformationHandler.StreamProgress)
	}

	return r
}
