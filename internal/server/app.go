package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/compose"
	"github.com/RoyPeng126/ai-companion-sub000/internal/config"
	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
	"github.com/RoyPeng126/ai-companion-sub000/internal/speech"
	"github.com/RoyPeng126/ai-companion-sub000/internal/store"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

// UserDirectory resolves the role and name of a token subject when the
// token does not carry them.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (store.User, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer drives. Transcriber, Users, DB
// and Metrics may be nil.
type Deps struct {
	DB          Pinger
	Users       UserDirectory
	Repo        assistant.Repository
	Router      *assistant.Router
	Wizard      *wizard.Wizard
	Composer    *compose.Composer
	Transcriber speech.Transcriber
	AI          AIClient
	Resolver    *datetime.Resolver
	Metrics     *Metrics
}

type App struct {
	cfg         config.Config
	db          Pinger
	users       UserDirectory
	repo        assistant.Repository
	router      *assistant.Router
	wizard      *wizard.Wizard
	composer    *compose.Composer
	transcriber speech.Transcriber
	ai          AIClient
	resolver    *datetime.Resolver
	metrics     *Metrics
}

type AuthUser struct {
	ID   string
	Role string
	Name string
}

func New(cfg config.Config, deps Deps) *App {
	composer := deps.Composer
	if composer == nil {
		composer = compose.NewComposer(nil, nil, nil)
	}
	ai := deps.AI
	if ai == nil {
		ai = MockAIClient{}
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = datetime.NewResolver(nil, cfg.Location())
	}
	return &App{
		cfg:         cfg,
		db:          deps.DB,
		users:       deps.Users,
		repo:        deps.Repo,
		router:      deps.Router,
		wizard:      deps.Wizard,
		composer:    composer,
		transcriber: deps.Transcriber,
		ai:          ai,
		resolver:    resolver,
		metrics:     deps.Metrics,
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware(), a.rateLimitMiddleware())

	api.POST("/chat", a.chat)
	api.GET("/reminders", a.listReminders)
	api.POST("/reminders", a.createReminder)
	api.POST("/reminders/:id/complete", a.completeReminder)
	api.GET("/friends/invites", a.listFriendInvites)
	api.POST("/friends/invites/:id/respond", a.respondFriendInvite)
	api.GET("/activities/invites", a.listActivityInvites)
	api.POST("/activities/:id/respond", a.respondActivityInvite)
	api.GET("/wizard", a.getWizardSession)
	api.DELETE("/wizard", a.cancelWizardSession)

	return router
}

func (a *App) health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "ai-companion-api",
	}
	if a.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.Ping(ctx); err != nil {
			log.Printf("health check database ping failed err=%v", err)
			body["status"] = "degraded"
			body["database"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	c.JSON(http.StatusOK, body)
}

// bearerToken reads the Authorization header, then the auth cookie.
func (a *App) bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	if name := strings.TrimSpace(a.cfg.AuthCookieName); name != "" {
		if value, err := c.Cookie(name); err == nil {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := a.bearerToken(c)
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

		user, status, err := a.resolveUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, status, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Next()
	}
}

// resolveUser trusts role and name claims and falls back to the user table
// for whatever the token leaves out.
func (a *App) resolveUser(ctx context.Context, userID string, claims jwt.MapClaims) (AuthUser, int, error) {
	user := AuthUser{
		ID:   userID,
		Role: claimString(claims, "role"),
		Name: claimString(claims, "name"),
	}
	if user.Role != "" || a.users == nil {
		return user, http.StatusOK, nil
	}

	record, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return AuthUser{}, http.StatusUnauthorized, errors.New("User not found")
	}
	if err != nil {
		log.Printf("auth user lookup failed user_id=%s err=%v", userID, err)
		return AuthUser{}, http.StatusInternalServerError, errors.New("Failed to load user")
	}
	user.Role = record.Role
	if user.Name == "" {
		user.Name = record.Name
	}
	return user, http.StatusOK, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
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

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func (u AuthUser) caller() assistant.Caller {
	return assistant.Caller{UserID: u.ID, Role: u.Role, Name: u.Name}
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
