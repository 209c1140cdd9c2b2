package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/serpwatch/serpwatch/internal/service"
)

type KeywordHandler struct {
	service     *service.KeywordService
	defaultFile string // keywords file used by import when no path is given
}

func NewKeywordHandler(service *service.KeywordService, defaultFile string) *KeywordHandler {
	return &KeywordHandler{service: service, defaultFile: defaultFile}
}

func (h *KeywordHandler) List(c *gin.Context) {
	keywords, err := h.service.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, keywords)
}

type createKeywordRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *KeywordHandler) Create(c *gin.Context) {
	var req createKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	keyword, err := h.service.Create(req.Text)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, keyword)
}

type updateKeywordRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *KeywordHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req updateKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}

	keyword, err := h.service.SetActive(uint(id), *req.Active)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "keyword not found"})
		return
	}
	c.JSON(http.StatusOK, keyword)
}

func (h *KeywordHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "keyword deleted"})
}

type importKeywordsRequest struct {
	Path string `json:"path"`
}

// Import loads keywords from a file on the server, defaulting to the
// configured keywords file.
func (h *KeywordHandler) Import(c *gin.Context) {
	var req importKeywordsRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	path := req.Path
	if path == "" {
		path = h.defaultFile
	}

	created, err := h.service.ImportFile(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "path": path})
}
