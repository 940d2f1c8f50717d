package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/datachat-ai/datachat/internal/agent"
	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/relationship"
)

// ChatRequest is one conversational turn
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Mode      string `json:"mode"` // chat (default) or sql
}

// ChatResponse carries the turn outcome plus the ordered step events that
// produced it
type ChatResponse struct {
	*agent.TurnResult
	Events []agent.Event `json:"events"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	if req.Mode == "" {
		req.Mode = "chat"
	}
	if req.SessionID == "" {
		session, err := s.transcripts.CreateSession(c.Request.Context(), "")
		if err != nil {
			c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
			return
		}
		req.SessionID = session.ID
	}

	var events []agent.Event
	sink := func(e agent.Event) { events = append(events, e) }

	result, err := s.agent.ProcessTurn(c.Request.Context(), req.SessionID, req.Message, req.Mode, sink)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, ChatResponse{TurnResult: result, Events: events})
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.transcripts.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	session, err := s.transcripts.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			enhancedErr := errors.NewInvalidInputError("limit", "must be a non-negative integer")
			c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
			return
		}
		limit = parsed
	}

	messages, err := s.transcripts.Messages(c.Request.Context(), c.Param("session"), limit)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("session"),
		"messages":   messages,
	})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	if err := s.transcripts.DeleteSession(c.Request.Context(), c.Param("session")); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("session")})
}

func (s *Server) handleDeleteAllHistory(c *gin.Context) {
	if err := s.transcripts.DeleteAll(c.Request.Context()); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": "all"})
}

func (s *Server) handleListTables(c *gin.Context) {
	tables, err := s.warehouse.ListTables(c.Request.Context())
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) handleDescribeTable(c *gin.Context) {
	info, err := s.warehouse.DescribeTable(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleLoadCSV(c *gin.Context) {
	table := c.Param("name")

	file, err := c.FormFile("file")
	if err != nil {
		enhancedErr := errors.NewInvalidInputError("file", "multipart file upload required")
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}
	dest := filepath.Join(s.uploadsDir, table+".csv")
	if err := c.SaveUploadedFile(file, dest); err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}

	rows, err := s.warehouse.LoadCSV(c.Request.Context(), table, dest)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	// The table changed shape, so the dictionary and the cached schema
	// summary are both stale
	documents, err := s.indexer.ReindexTable(c.Request.Context(), table)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	s.cache.Invalidate()

	c.JSON(http.StatusOK, gin.H{
		"table":     table,
		"rows":      rows,
		"documents": documents,
	})
}

func (s *Server) handleDropTable(c *gin.Context) {
	table := c.Param("name")

	if err := s.warehouse.DropTable(c.Request.Context(), table); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	if err := s.indexer.RemoveTable(c.Request.Context(), table); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	s.cache.Invalidate()

	c.JSON(http.StatusOK, gin.H{"dropped": table})
}

func (s *Server) handleListRelationships(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"relationships": s.rels.List()})
}

func (s *Server) handleAddRelationship(c *gin.Context) {
	var rel relationship.Relationship
	if err := c.ShouldBindJSON(&rel); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	if err := s.rels.Add(rel); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusCreated, rel)
}

func (s *Server) handleRemoveRelationship(c *gin.Context) {
	var rel relationship.Relationship
	if err := c.ShouldBindJSON(&rel); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	removed, err := s.rels.Remove(rel)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	if !removed {
		enhancedErr := errors.New(errors.ErrCodeInvalidInput, "relationship not found")
		c.JSON(http.StatusNotFound, formatErrorResponse(enhancedErr))
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": rel})
}

func (s *Server) handleResetRelationships(c *gin.Context) {
	if err := s.rels.Reset(); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": []relationship.Relationship{}})
}

func (s *Server) handleIndexStats(c *gin.Context) {
	stats, err := s.index.Stats(c.Request.Context())
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleReindex(c *gin.Context) {
	documents, err := s.indexer.ReindexAll(c.Request.Context())
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	s.cache.Invalidate()

	c.JSON(http.StatusOK, gin.H{"documents": documents})
}
