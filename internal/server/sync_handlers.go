package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/syncer"
)

type remoteConfigPayload struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type remoteConfigView struct {
	State credentials.State `json:"state"`
	Owner string            `json:"owner"`
	Repo  string            `json:"repo"`
	Token string            `json:"token"`
}

func viewRemoteConfig(config credentials.RemoteConfig) remoteConfigView {
	return remoteConfigView{
		State: config.State(),
		Owner: config.Owner,
		Repo:  config.Repo,
		Token: config.MaskToken(),
	}
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.surface.Current())
}

func (h *httpHandler) handleDismissStatus(c *gin.Context) {
	h.surface.Dismiss()
	c.JSON(http.StatusOK, h.surface.Current())
}

func (h *httpHandler) handleStatusStream(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(RealtimeEventStatus, RealtimeMessage{Status: h.surface.Current(), Timestamp: h.clock().UTC()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatEvery)
	defer heartbeat.Stop()
	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": h.clock().UTC()})
			return true
		}
	})
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	outcome := h.engine.PollOnce(c.Request.Context(), true)
	c.JSON(http.StatusOK, outcome)
}

func (h *httpHandler) handleVisibility(c *gin.Context) {
	if h.poller == nil {
		c.JSON(http.StatusOK, h.engine.PollOnce(c.Request.Context(), false))
		return
	}
	h.poller.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	outcome := h.engine.Publish(c.Request.Context())
	if outcome.Kind == syncer.KindConflict {
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": outcome.Message, "outcome": outcome})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *httpHandler) handleGetRemoteConfig(c *gin.Context) {
	c.JSON(http.StatusOK, viewRemoteConfig(h.workspace.RemoteConfig()))
}

// handlePutRemoteConfig keeps the stored token when the request leaves it blank.
func (h *httpHandler) handlePutRemoteConfig(c *gin.Context) {
	var request remoteConfigPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	next := credentials.RemoteConfig{
		Token: strings.TrimSpace(request.Token),
		Owner: strings.TrimSpace(request.Owner),
		Repo:  strings.TrimSpace(request.Repo),
	}
	if next.Token == "" {
		next.Token = h.workspace.RemoteConfig().Token
	}
	if err := h.workspace.SetRemoteConfig(next); err != nil {
		h.logger.Error("failed to store remote settings", zap.String("operation", "remote_config"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remote_config_failed"})
		return
	}
	h.logger.Info("remote settings updated",
		zap.String("owner", next.Owner),
		zap.String("repo", next.Repo),
		zap.String("state", string(next.State())))
	if h.poller != nil && next.Complete() {
		h.poller.Trigger()
	}
	c.JSON(http.StatusOK, viewRemoteConfig(next))
}
