// Package api wires the generic sendable endpoints onto a gin engine. Every
// registered entity type gets the same route set under /api/v1/<name>s/.
package api

import (
	"strings"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/sendables/config"
	"github.com/d60-Lab/sendables/internal/api/handler"
	"github.com/d60-Lab/sendables/internal/api/middleware"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/service"
)

// Services bundles everything the routes need.
type Services struct {
	Auth    *service.AuthService
	Send    *service.SendService
	Mark    *service.MarkService
	Retract *service.RetractService
	List    *service.ListService
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}

// NewRouter builds the engine and mounts the route set of every entity type
// in the registry.
func NewRouter(cfg *config.Config, reg *registry.Registry, svcs Services) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(gin.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware("sendables"))
	}
	r.Use(middleware.RateLimit(cfg.Server.RateLimit, 0))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", handler.NewAuthHandler(svcs.Auth).Login)

	h := handler.NewSendableHandler(svcs.Send, svcs.Mark, svcs.Retract, svcs.List)
	authed := v1.Group("", middleware.Auth(svcs.Auth))
	for _, name := range reg.Names() {
		entity, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		mountEntity(authed, h, entity)
	}
	return r
}

func mountEntity(parent *gin.RouterGroup, h *handler.SendableHandler, cfg *registry.Config) {
	g := parent.Group("/" + cfg.Name + "s")

	g.POST("/send", h.Send(cfg))
	g.PATCH("/mark-read", h.MarkRead(cfg))
	g.PATCH("/mark-unread", h.MarkUnread(cfg))
	g.DELETE("/delete", h.Delete(cfg))
	g.DELETE("/delete-sent", h.DeleteSent(cfg))

	read, unread := true, false
	g.GET("", h.List(cfg, registry.ActionList, nil))
	g.GET("/read", h.List(cfg, registry.ActionListRead, &read))
	g.GET("/unread", h.List(cfg, registry.ActionListUnread, &unread))
	g.GET("/unread-count", h.UnreadCount(cfg))
	g.GET("/sent", h.ListSent(cfg))
	g.GET("/sent/:"+cfg.KeyName, h.DetailSent(cfg))
	g.GET("/:"+cfg.KeyName, h.Detail(cfg))
}
