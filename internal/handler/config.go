package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/serpwatch/serpwatch/config"
)

type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// Get exposes the effective runtime settings. The database DSN is withheld
// since it may carry credentials.
func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server": gin.H{
			"port": h.cfg.Server.Port,
			"mode": h.cfg.Server.Mode,
		},
		"database": gin.H{
			"type": h.cfg.Database.Type,
		},
		"extract": gin.H{
			"country":       h.cfg.Extract.Country,
			"headless":      h.cfg.Extract.Headless,
			"wait_time":     h.cfg.Extract.WaitTime,
			"keywords_file": h.cfg.Extract.KeywordsFile,
			"max_workers":   h.cfg.Extract.MaxWorkers,
		},
		"data": gin.H{
			"dir": h.cfg.Data.Dir,
		},
		"schedule": gin.H{
			"enabled": h.cfg.Schedule.Enabled,
			"cron":    h.cfg.Schedule.Cron,
		},
		"git": gin.H{
			"enabled": h.cfg.Git.Enabled,
			"remote":  h.cfg.Git.Remote,
			"branch":  h.cfg.Git.Branch,
			"push":    h.cfg.Git.Push,
		},
	})
}
