package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/ammar0101/campus-security-system/internal/delivery/http/middleware"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps regroupe ce dont le routeur a besoin. Storage et les
// limiteurs sont facultatifs.
type RouterDeps struct {
	Auth      service.AuthService
	Incidents service.IncidentService
	Alerts    service.AlertService
	Analytics service.AnalyticsService
	Storage   service.StorageService
	Audit     service.AuditService
	Hub       *realtime.Hub

	AllowedOrigins  []string
	GeneralLimiter  *middleware.RateLimiter
	IncidentLimiter *middleware.RateLimiter
	Logger          *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(d.Logger))

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	authHandler := NewAuthHandler(d.Auth)
	incidentHandler := NewIncidentHandler(d.Incidents, d.Storage)
	alertHandler := NewAlertHandler(d.Alerts)
	analyticsHandler := NewAnalyticsHandler(d.Analytics)

	authMiddleware := middleware.AuthMiddleware(d.Auth)

	api := r.Group("/api/v1")
	if d.GeneralLimiter != nil {
		api.Use(d.GeneralLimiter.Middleware())
	}
	{
		api.POST("/auth/login", authHandler.Login)

		incidents := api.Group("/incidents")
		incidents.Use(authMiddleware)
		{
			creation := []gin.HandlerFunc{}
			if d.IncidentLimiter != nil {
				creation = append(creation, d.IncidentLimiter.Middleware())
			}
			incidents.POST("", append(creation, incidentHandler.Create)...)
			incidents.POST("/emergency", append(creation, incidentHandler.Panic)...)
			incidents.GET("", incidentHandler.List)
			incidents.GET("/mine", incidentHandler.ListMine)
			incidents.GET("/upload-url", incidentHandler.GetUploadURL)
			incidents.GET("/media-url", middleware.StaffOnly(), incidentHandler.GetMediaURL)
			incidents.GET("/:id", incidentHandler.Get)
			incidents.PATCH("/:id/status", middleware.StaffOnly(), incidentHandler.UpdateStatus)
			incidents.POST("/:id/cancel", incidentHandler.Cancel)
		}

		alerts := api.Group("/alerts")
		alerts.Use(authMiddleware)
		{
			alerts.POST("", middleware.StaffOnly(), alertHandler.Create)
			alerts.GET("", alertHandler.List)
			alerts.GET("/:id", alertHandler.Get)
			alerts.POST("/:id/acknowledge", alertHandler.Acknowledge)
			alerts.POST("/:id/cancel", alertHandler.Cancel)
		}

		analytics := api.Group("/analytics")
		analytics.Use(authMiddleware, middleware.StaffOnly())
		{
			analytics.GET("/dashboard", analyticsHandler.Dashboard)
			analytics.GET("/incidents", analyticsHandler.IncidentTrend)
			analytics.GET("/hotspots", analyticsHandler.Hotspots)
			analytics.GET("/export", middleware.AdminOnly(), analyticsHandler.Export)
		}

		if d.Audit != nil {
			adminHandler := NewAdminHandler(d.Audit)
			admin := api.Group("/admin")
			admin.Use(authMiddleware, middleware.AdminOnly())
			{
				admin.GET("/audit-logs", adminHandler.AuditLogs)
			}
		}
	}

	if d.Hub != nil {
		wsHandler := NewWSHandler(d.Hub, wsOrigins(origins), d.Logger)
		r.GET("/ws", authMiddleware, wsHandler.Serve)
	}

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "healthy"}
		if d.Hub != nil {
			body["realtime_clients"] = d.Hub.ClientCount()
		}
		c.JSON(http.StatusOK, body)
	})

	return r
}

// wsOrigins convertit la liste CORS en motifs d'origine websocket (hôtes sans schéma).
func wsOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
