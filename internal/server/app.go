package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "requestID"
	authSubjectKey      = "authSubject"
)

var errPipelineNotReady = errors.New("chat pipeline is not ready")

type App struct {
	cfg      config.Config
	runLog   RunLogger
	pipe     atomic.Pointer[chat.Pipeline]
	runLogWG sync.WaitGroup
}

// New builds the HTTP app. runLog may be nil when no database is configured.
func New(cfg config.Config, runLog RunLogger) *App {
	return &App{cfg: cfg, runLog: runLog}
}

// SetPipeline publishes the provider snapshot. Requests arriving before the
// first call get 503.
func (a *App) SetPipeline(pipeline *chat.Pipeline) {
	a.pipe.Store(pipeline)
}

func (a *App) pipeline() (*chat.Pipeline, error) {
	pipeline := a.pipe.Load()
	if pipeline == nil {
		return nil, errPipelineNotReady
	}
	return pipeline, nil
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(requestIDMiddleware())

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	if a.cfg.AuthRequired {
		api.Use(a.authMiddleware())
	}
	api.POST("/chat", a.chat)
	api.POST("/detect-language", a.detectLanguage)

	return router
}

func (a *App) health(c *gin.Context) {
	pipelineState := "ready"
	if _, err := a.pipeline(); err != nil {
		pipelineState = "not_ready"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "agriagent-api",
		"pipeline": pipelineState,
	})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(chat.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func requestIDFromContext(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

// authMiddleware verifies bearer tokens issued by the account service. Only
// the subject is kept; this service has no user table.
func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		c.Set(authSubjectKey, sub)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
