package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/frostlog/internal/auth"
	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
	"github.com/MarcoPoloResearchLab/frostlog/internal/syncer"
	"github.com/MarcoPoloResearchLab/frostlog/internal/users"
)

const sessionContextKey = "frostlog_session"

var (
	errMissingEngine        = errors.New("sync engine dependency required")
	errMissingOperators     = errors.New("operator service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingStatusSurface = errors.New("status surface dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type OperatorAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (users.Operator, error)
}

type TokenManager interface {
	Issue(subject, role string) (auth.IssuedToken, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

// PollTrigger queues a manual poll without waiting for it.
type PollTrigger interface {
	Trigger()
}

type Dependencies struct {
	Engine         *syncer.Engine
	Operators      OperatorAuthenticator
	TokenManager   TokenManager
	Status         *status.Surface
	Realtime       *RealtimeDispatcher
	Poller         PollTrigger
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Operators == nil {
		return nil, errMissingOperators
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Status == nil {
		return nil, errMissingStatusSurface
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
		realtime.Attach(deps.Status)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		engine:    deps.Engine,
		workspace: deps.Engine.Workspace(),
		operators: deps.Operators,
		tokens:    deps.TokenManager,
		surface:   deps.Status,
		realtime:  realtime,
		poller:    deps.Poller,
		clock:     clock,
		logger:    logger,
	}

	router.POST("/auth/login", handler.handleLogin)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)

	protected.GET("/records/maintenance", handler.handleListMaintenance)
	protected.GET("/records/components", handler.handleListComponents)
	protected.GET("/clients", handler.handleClients)
	protected.GET("/technicians", handler.handleTechnicians)
	protected.GET("/summary", handler.handleSummary)

	protected.GET("/status", handler.handleStatus)
	protected.POST("/status/dismiss", handler.handleDismissStatus)
	protected.GET("/status/stream", handler.handleStatusStream)
	protected.POST("/sync/refresh", handler.handleRefresh)
	protected.POST("/sync/visibility", handler.handleVisibility)
	protected.GET("/remote/config", handler.handleGetRemoteConfig)

	admin := protected.Group("/")
	admin.Use(requireAdmin)
	admin.POST("/records/maintenance", handler.handleCreateMaintenance)
	admin.PUT("/records/maintenance/:id", handler.handleUpdateMaintenance)
	admin.PATCH("/records/maintenance/:id/pendency", handler.handleResolvePendency)
	admin.DELETE("/records/maintenance/:id", handler.handleDeleteMaintenance)
	admin.POST("/records/components", handler.handleCreateComponent)
	admin.POST("/records/import", handler.handleImport)
	admin.POST("/sync/publish", handler.handlePublish)
	admin.PUT("/remote/config", handler.handlePutRemoteConfig)

	return router, nil
}

func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	engine    *syncer.Engine
	workspace *syncer.Workspace
	operators OperatorAuthenticator
	tokens    TokenManager
	surface   *status.Surface
	realtime  *RealtimeDispatcher
	poller    PollTrigger
	clock     func() time.Time
	logger    *zap.Logger
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	operator, err := h.operators.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Info("login rejected", zap.String("username", request.Username))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("operator lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	issued, err := h.tokens.Issue(operator.Username, string(operator.Role))
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	h.workspace.StartSession(issued.ID, issued.ExpiresAt)
	h.logger.Info("operator signed in", zap.String("username", operator.Username), zap.String("role", string(operator.Role)))

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: issued.Value,
		ExpiresIn:   issued.ExpiresIn,
		TokenType:   "Bearer",
		Role:        string(operator.Role),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	claims := sessionFrom(c)
	h.workspace.EndSession(claims.ID)
	c.Status(http.StatusNoContent)
}

// authorizeRequest accepts the token from the Authorization header, or from the access_token
// query parameter for event streams that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case header == "":
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.workspace != nil && !h.workspace.SessionActive(claims.ID) {
		h.logger.Info("session ended", zap.String("subject", claims.Subject))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_ended"})
		return
	}
	c.Set(sessionContextKey, claims)
	c.Next()
}

func requireAdmin(c *gin.Context) {
	if sessionFrom(c).Role != string(users.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func sessionFrom(c *gin.Context) auth.SessionClaims {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return auth.SessionClaims{}
	}
	claims, _ := value.(auth.SessionClaims)
	return claims
}
