package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yoockh/launchkit/internal/api/handlers"
	"github.com/yoockh/launchkit/internal/api/middleware"
)

type Deps struct {
	JWT          middleware.JWTConfig
	AdminChecker middleware.AdminChecker
	RateLimiter  *middleware.IPRateLimiter

	Health *handlers.HealthHandler
	Auth   *handlers.AuthHandler
	Users  *handlers.UserHandler
	Admin  *handlers.AdminHandler
	// Billing is nil when billing is switched off; its routes are not mounted.
	Billing *handlers.BillingHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Middleware())
	}

	api.GET("/health", d.Health.Health)
	api.GET("/health/detailed", d.Health.Detailed)

	authn := middleware.JWTAuth(d.JWT)

	auth := api.Group("/auth")
	auth.POST("/login", d.Auth.Login)
	auth.POST("/signup", d.Auth.Signup)
	auth.POST("/reset-password", d.Auth.ResetPassword)
	auth.POST("/logout", middleware.OptionalJWT(d.JWT), d.Auth.Logout)

	users := api.Group("/users", authn)
	users.GET("/me", d.Users.Me)
	users.PUT("/me", d.Users.UpdateMe)
	users.DELETE("/me", d.Users.DeleteMe)
	users.GET("/stats", d.Users.Stats)

	admin := api.Group("/admin", authn, middleware.RequireAdmin(d.AdminChecker))
	admin.GET("/users", d.Admin.ListUsers)
	admin.GET("/users/export", d.Admin.Export)
	admin.PUT("/users/:id/admin", d.Admin.SetAdmin)
	admin.DELETE("/users/:id", d.Admin.DeleteUser)
	admin.GET("/stats", d.Admin.Stats)
	admin.GET("/activity", d.Admin.Activity)

	if d.Billing != nil {
		billing := api.Group("/billing")
		billing.POST("/webhook", d.Billing.Webhook)

		user := billing.Group("", authn)
		user.GET("/subscription", d.Billing.Subscription)
		user.POST("/create-checkout-session", d.Billing.Checkout)
		user.POST("/create-portal-session", d.Billing.Portal)
	}
}
