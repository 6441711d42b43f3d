package server

import (
	"context"
	"net/http"
	"time"

	"classbook/internal/auth"
	"classbook/internal/booking"
	"classbook/internal/classpack"
	"classbook/internal/config"
	"classbook/internal/gymclass"
	"classbook/internal/member"
	"classbook/internal/membership"
	"classbook/internal/wallet"
	"classbook/internal/webhook"

	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Members     *member.Handler
	Memberships *membership.Handler
	Wallets     *wallet.Handler
	Classes     *gymclass.Handler
	Packs       *classpack.Handler
	Bookings    *booking.Handler
	Webhooks    *webhook.Handler
}

type Server struct {
	router *gin.Engine
	http   *http.Server
}

func New(cfg *config.Config, db Pinger, emails EmailSender, h Handlers) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", Health(db))
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	limit := RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	staffOnly := auth.RequireRole(auth.RoleStaff, auth.RoleAdmin)

	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(cfg.JWTSecret))

	authed := api.Group("")
	{
		authed.GET("/me", h.Members.GetMe)
		authed.GET("/me/memberships", h.Memberships.List)
		authed.GET("/me/memberships/active", h.Memberships.GetActive)
		authed.GET("/me/class-packs", h.Packs.ListBalances)
		authed.POST("/me/class-packs/purchase", h.Packs.Purchase)
		authed.GET("/wallet", h.Wallets.GetBalance)
		authed.POST("/wallet/topup", h.Wallets.TopUp)
		authed.GET("/wallet/transactions", h.Wallets.ListTransactions)

		authed.GET("/members/:id", h.Members.Get)
		authed.GET("/members/:id/memberships", h.Memberships.List)
		authed.GET("/members/:id/memberships/active", h.Memberships.GetActive)
		authed.GET("/members/:id/class-packs", h.Packs.ListBalances)
		authed.POST("/members/:id/class-packs/purchase", h.Packs.Purchase)
		authed.GET("/members/:id/wallet", h.Wallets.GetBalance)
		authed.GET("/members/:id/wallet/transactions", h.Wallets.ListTransactions)
		authed.GET("/members/:id/bookings", h.Bookings.ListByMember)

		authed.GET("/categories", h.Classes.ListCategories)
		authed.GET("/classes", h.Classes.ListClasses)
		authed.GET("/classes/:id", h.Classes.GetClass)
		authed.GET("/classes/:id/schedules", h.Classes.ListSchedules)
		authed.GET("/sessions", h.Classes.ListSessions)
		authed.GET("/sessions/:id", h.Classes.GetSession)
		authed.GET("/sessions/:id/payment-options", h.Bookings.PaymentOptions)
		authed.GET("/sessions/:id/waitlist", h.Bookings.Waitlist)
		authed.GET("/class-packs", h.Packs.ListPacks)
		authed.GET("/class-packs/:id", h.Packs.GetPack)

		authed.POST("/bookings", limit, h.Bookings.Create)
		authed.GET("/bookings/:id", h.Bookings.Get)
		authed.POST("/bookings/:id/cancel", limit, h.Bookings.Cancel)
	}

	staff := api.Group("")
	staff.Use(staffOnly)
	{
		staff.POST("/members", h.Members.Create)
		staff.GET("/members", h.Members.List)
		staff.PATCH("/members/:id/status", h.Members.UpdateStatus)
		staff.POST("/members/:id/memberships", h.Memberships.Create)
		staff.POST("/memberships/:membershipID/cancel", h.Memberships.Cancel)
		staff.POST("/members/:id/class-packs", h.Packs.Grant)
		staff.POST("/members/:id/wallet/topup", h.Wallets.TopUp)
		staff.POST("/class-pack-balances/:balanceID/cancel", h.Packs.CancelBalance)

		staff.POST("/categories", h.Classes.CreateCategory)
		staff.POST("/classes", h.Classes.CreateClass)
		staff.PATCH("/classes/:id/capacity", h.Classes.UpdateCapacity)
		staff.POST("/classes/:id/activate", h.Classes.Activate)
		staff.POST("/classes/:id/deactivate", h.Classes.Deactivate)
		staff.POST("/classes/:id/archive", h.Classes.Archive)
		staff.POST("/classes/:id/image", h.Classes.RequestImageUpload)
		staff.POST("/classes/:id/schedules", h.Classes.CreateSchedule)
		staff.POST("/schedules/:scheduleID/deactivate", h.Classes.DeactivateSchedule)

		staff.POST("/sessions", h.Classes.CreateSession)
		staff.POST("/sessions/:id/start", h.Classes.StartSession)
		staff.DELETE("/sessions/:id", h.Classes.DeleteSession)
		staff.GET("/sessions/:id/bookings", h.Bookings.ListBySession)
		staff.POST("/sessions/:id/cancel", h.Bookings.CancelSession)
		staff.POST("/sessions/:id/complete", h.Bookings.CompleteSession)
		staff.POST("/sessions/:id/no-shows", h.Bookings.ProcessNoShows)

		staff.POST("/bookings/:id/check-in", h.Bookings.CheckIn)
		staff.POST("/bookings/:id/no-show", h.Bookings.MarkNoShow)
		staff.DELETE("/bookings/:id", h.Bookings.Delete)

		staff.POST("/class-packs", h.Packs.CreatePack)
		staff.POST("/class-packs/:id/activate", h.Packs.Activate)
		staff.POST("/class-packs/:id/deactivate", h.Packs.Deactivate)
		staff.DELETE("/class-packs/:id", h.Packs.DeletePack)
	}

	admin := api.Group("/admin")
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/sessions/generate", h.Classes.GenerateSessions)
		admin.POST("/bookings/bulk", h.Bookings.BulkCreate)
		admin.POST("/bookings/bulk-cancel", h.Bookings.BulkCancel)
		admin.POST("/bookings/bulk-check-in", h.Bookings.BulkCheckIn)
		admin.GET("/analytics/bookings", h.Bookings.Stats)

		admin.POST("/webhooks", h.Webhooks.Create)
		admin.GET("/webhooks", h.Webhooks.List)
		admin.GET("/webhooks/:id", h.Webhooks.Get)
		admin.PATCH("/webhooks/:id", h.Webhooks.Update)
		admin.DELETE("/webhooks/:id", h.Webhooks.Delete)

		admin.POST("/test-email", TestEmail(emails))
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks until the server stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
