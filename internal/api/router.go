package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	// CORSOrigins lists allowed browser origins; "*" or empty allows any.
	CORSOrigins    []string
	TrustedProxies []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", adminTokenHeader},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func NewRouter(polls *PollHandler, surveys *SurveyHandler, cfg RouterConfig, l *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(l), cors.New(corsConfig(cfg.CORSOrigins)))
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		l.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")

	p := api.Group("/polls")
	p.POST("", polls.Create)
	p.GET("", polls.List)
	p.GET("/:id", polls.View)
	p.GET("/:id/can-vote", polls.CanVote)
	p.POST("/:id/vote", polls.Vote)
	p.POST("/:id/opinions", polls.AddOpinion)
	p.GET("/:id/results", polls.Results)
	p.POST("/:id/admin/login", polls.Login)

	pa := p.Group("/:id/admin", requireAdmin(polls.s.Authorize, l))
	pa.POST("/logout", polls.Logout)
	pa.GET("", polls.AdminView)
	pa.PATCH("", polls.Update)
	pa.POST("/hide", polls.SetHidden)
	pa.DELETE("", polls.Delete)
	pa.DELETE("/opinions/:opinionID", polls.DeleteOpinion)
	pa.POST("/end", polls.End)
	pa.GET("/stats", polls.Stats)
	pa.GET("/export.csv", polls.Export)

	s := api.Group("/surveys")
	s.POST("", surveys.Create)
	s.GET("", surveys.List)
	s.GET("/:id", surveys.View)
	s.POST("/:id/responses", surveys.Submit)
	s.GET("/:id/responses/:code", surveys.ResponseByCode)
	s.POST("/:id/admin/login", surveys.Login)

	sa := s.Group("/:id/admin", requireAdmin(surveys.s.Authorize, l))
	sa.POST("/logout", surveys.Logout)
	sa.GET("", surveys.AdminView)
	sa.PATCH("", surveys.Update)
	sa.PUT("/questions", surveys.ReplaceQuestions)
	sa.POST("/publish", surveys.Publish)
	sa.POST("/close", surveys.Close)
	sa.POST("/hide", surveys.SetHidden)
	sa.DELETE("", surveys.Delete)
	sa.GET("/responses", surveys.ListResponses)
	sa.DELETE("/responses/:responseID", surveys.DeleteResponse)
	sa.GET("/stats", surveys.Stats)
	sa.GET("/export.csv", surveys.Export)

	return r
}
