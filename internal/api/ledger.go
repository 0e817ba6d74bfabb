package api

import (
	"encoding/json"
	"net/http"
	"time"

	"commerce-service/internal/ledger"
	"commerce-service/internal/models"

	"github.com/gin-gonic/gin"
)

type createLogRequest struct {
	Type        string          `json:"type" binding:"required"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	ProjectID   string          `json:"project_id"`
	Details     json.RawMessage `json:"details"`
}

func (h *Handler) createLog(c *gin.Context) {
	var req createLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	t, err := ledger.ParseLogType(req.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}
	details, err := ledger.DecodeDetails(t, req.Details)
	if err != nil {
		h.writeError(c, err)
		return
	}

	entry, err := h.Ledger.Create(c.Request.Context(), identity(c), ledger.CreateLogInput{
		Type:        t,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		ProjectID:   req.ProjectID,
		Details:     details,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"log": entry})
}

func (h *Handler) listLogs(c *gin.Context) {
	f := ledger.Filter{
		Status:    ledger.Status(c.Query("status")),
		CreatedBy: c.Query("created_by"),
		Limit:     queryInt(c, "limit", ledger.DefaultLimit),
		Offset:    queryInt(c, "offset", 0),
	}
	if raw := c.Query("type"); raw != "" {
		t, err := ledger.ParseLogType(raw)
		if err != nil {
			h.writeError(c, err)
			return
		}
		f.Type = t
	}

	entries, err := h.Ledger.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

func (h *Handler) getLog(c *gin.Context) {
	entry, err := h.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": entry})
}

type decisionRequest struct {
	Type     string `json:"type" binding:"required"`
	Decision string `json:"decision" binding:"required"`
}

func (h *Handler) decideLog(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	t, err := ledger.ParseLogType(req.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}

	entry, err := h.Ledger.Decide(c.Request.Context(), identity(c), c.Param("id"), t, ledger.Decision(req.Decision))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": entry})
}

type archiveRequest struct {
	Type string `json:"type" binding:"required"`
}

func (h *Handler) archiveLog(c *gin.Context) {
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	t, err := ledger.ParseLogType(req.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}

	entry, err := h.Ledger.Archive(c.Request.Context(), identity(c), c.Param("id"), t)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": entry})
}

type commentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) addComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	comment, err := h.Ledger.AddComment(c.Request.Context(), identity(c), c.Param("id"), req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func (h *Handler) listComments(c *gin.Context) {
	comments, err := h.Ledger.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// parseBound accepts RFC 3339 or a plain date; empty means unbounded
func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (h *Handler) ledgerSummary(c *gin.Context) {
	from, err := parseBound(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
		return
	}
	to, err := parseBound(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
		return
	}

	summary, err := h.Ledger.Summary(c.Request.Context(), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
