package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datachat-ai/datachat/internal/agent"
	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/relationship"
	"github.com/datachat-ai/datachat/internal/semantic"
	"github.com/datachat-ai/datachat/internal/transcript"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

// Server exposes the conversational engine over HTTP
type Server struct {
	agent       *agent.Agent
	transcripts *transcript.Store
	warehouse   *warehouse.DuckDB
	cache       *warehouse.SchemaCache
	indexer     *semantic.Indexer
	index       semantic.Index
	rels        *relationship.Store
	health      *observability.HealthChecker
	uploadsDir  string
	logger      *observability.Logger
}

// ServerConfig wires the server's collaborators
type ServerConfig struct {
	Agent       *agent.Agent
	Transcripts *transcript.Store
	Warehouse   *warehouse.DuckDB
	Cache       *warehouse.SchemaCache
	Indexer     *semantic.Indexer
	Index       semantic.Index
	Rels        *relationship.Store
	Health      *observability.HealthChecker
	UploadsDir  string
}

// NewServer creates the HTTP server
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		agent:       cfg.Agent,
		transcripts: cfg.Transcripts,
		warehouse:   cfg.Warehouse,
		cache:       cfg.Cache,
		indexer:     cfg.Indexer,
		index:       cfg.Index,
		rels:        cfg.Rels,
		health:      cfg.Health,
		uploadsDir:  cfg.UploadsDir,
		logger:      observability.NewLogger("api"),
	}
}

// Routes builds the gin engine with all endpoints registered
func (s *Server) Routes() *gin.Engine {
	r := gin.New()

	r.Use(observability.RecoveryMiddleware(s.logger))
	r.Use(observability.RequestLoggingMiddleware(s.logger))
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		response := s.health.GetHealthResponse(c.Request.Context())
		statusCode := http.StatusOK
		if response.Status == observability.HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, response)
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":   observability.GetGlobalMetrics().GetAll(),
			"timestamp": time.Now(),
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/chat", s.handleChat)

		api.GET("/sessions", s.handleListSessions)
		api.POST("/sessions", s.handleCreateSession)
		api.GET("/history/:session", s.handleGetHistory)
		api.DELETE("/history/:session", s.handleDeleteHistory)
		api.DELETE("/history", s.handleDeleteAllHistory)

		api.GET("/tables", s.handleListTables)
		api.GET("/tables/:name", s.handleDescribeTable)
		api.POST("/tables/:name/csv", s.handleLoadCSV)
		api.DELETE("/tables/:name", s.handleDropTable)

		api.GET("/relationships", s.handleListRelationships)
		api.POST("/relationships", s.handleAddRelationship)
		api.DELETE("/relationships", s.handleRemoveRelationship)
		api.POST("/relationships/reset", s.handleResetRelationships)

		api.GET("/index/stats", s.handleIndexStats)
		api.POST("/index/reindex", s.handleReindex)
	}

	return r
}

// formatErrorResponse renders an error for API clients, surfacing the
// suggestion and metadata an enhanced error carries
func formatErrorResponse(err error) gin.H {
	if enhancedErr, ok := err.(*errors.EnhancedError); ok {
		body := gin.H{
			"code":    enhancedErr.Code,
			"message": enhancedErr.Message,
		}
		if enhancedErr.Details != "" {
			body["details"] = enhancedErr.Details
		}
		if enhancedErr.Suggestion != "" {
			body["suggestion"] = enhancedErr.Suggestion
		}
		if len(enhancedErr.Metadata) > 0 {
			body["metadata"] = enhancedErr.Metadata
		}
		return gin.H{"error": body}
	}

	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode maps an error code onto its HTTP status
func getErrorStatusCode(err error) int {
	if enhancedErr, ok := err.(*errors.EnhancedError); ok {
		switch enhancedErr.Code {
		case errors.ErrCodeInvalidInput, errors.ErrCodeMissingRequired,
			errors.ErrCodeInvalidTableName, errors.ErrCodeCSVLoad:
			return http.StatusBadRequest
		case errors.ErrCodeTableNotFound:
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
