package api

import (
	"github.com/gin-gonic/gin"
	v1 "github.com/siteassist/billing-engine/internal/api/v1"
	"github.com/siteassist/billing-engine/internal/config"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/rest/middleware"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Plan         *v1.PlanHandler
	Subscription *v1.SubscriptionHandler
	Payment      *v1.PaymentHandler
	Webhook      *v1.WebhookHandler
	Usage        *v1.UsageHandler
	Coupon       *v1.CouponHandler
	Admin        *v1.AdminHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode == config.ModeProd {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	// Gateway deliveries authenticate by signature, not by bearer token.
	router.POST("/webhooks/:gateway", handlers.Webhook.HandleWebhook)

	public := router.Group("/v1")
	registerPublicRoutes(public, handlers)

	private := router.Group("/v1")
	private.Use(middleware.AuthenticateMiddleware(cfg, log))
	registerPrivateRoutes(private, handlers)

	return router
}

// registerPublicRoutes mounts the pre-auth signup flow; the payer has no
// account yet so there is nothing to authenticate against.
func registerPublicRoutes(router *gin.RouterGroup, handlers Handlers) {
	registration := router.Group("/registration/payments/:gateway")
	{
		registration.POST("/create-order", handlers.Payment.CreateRegistrationOrder)
		registration.POST("/verify", handlers.Payment.VerifyRegistrationPayment)
	}
}

func registerPrivateRoutes(router *gin.RouterGroup, handlers Handlers) {
	plans := router.Group("/plans")
	{
		plans.POST("", handlers.Plan.CreatePlan)
		plans.GET("", handlers.Plan.ListPlans)
		plans.GET("/:id", handlers.Plan.GetPlan)
		plans.PUT("/:id", handlers.Plan.UpdatePlan)
		plans.DELETE("/:id", handlers.Plan.DeletePlan)
	}

	coupons := router.Group("/coupons")
	{
		coupons.POST("", handlers.Coupon.CreateCoupon)
		coupons.GET("", handlers.Coupon.ListCoupons)
		coupons.GET("/validate", handlers.Coupon.ValidateCoupon)
		coupons.GET("/:id", handlers.Coupon.GetCoupon)
	}

	sites := router.Group("/sites/:id")
	sites.Use(middleware.SiteAccessMiddleware)
	{
		subscription := sites.Group("/subscription")
		{
			subscription.POST("", handlers.Subscription.CreateSubscription)
			subscription.GET("", handlers.Subscription.GetSubscription)
			subscription.POST("/cancel", handlers.Subscription.CancelSubscription)
			subscription.POST("/reactivate", handlers.Subscription.ReactivateSubscription)
			subscription.POST("/change-plan", handlers.Subscription.ChangePlan)
			subscription.GET("/history", handlers.Subscription.GetHistory)
		}

		sites.GET("/autopay", handlers.Subscription.GetAutoPayStatus)
		sites.PUT("/autopay", handlers.Subscription.UpdateAutoPay)

		checkout := sites.Group("/checkout/:gateway")
		{
			checkout.POST("/create-order", handlers.Payment.CreateOrder)
			checkout.POST("/verify", handlers.Payment.VerifyPayment)
		}

		payments := sites.Group("/payments")
		{
			payments.GET("", handlers.Payment.ListPayments)
			payments.GET("/:paymentId", handlers.Payment.GetPayment)
		}

		invoices := sites.Group("/invoices")
		{
			invoices.GET("", handlers.Payment.ListInvoices)
			invoices.GET("/:invoiceId", handlers.Payment.GetInvoice)
		}

		usage := sites.Group("/usage")
		{
			usage.POST("", handlers.Usage.RecordUsage)
			usage.GET("", handlers.Usage.GetUsageSummary)
			usage.GET("/check", handlers.Usage.CheckLimit)
		}
	}

	admin := router.Group("/admin")
	{
		admin.GET("/subscriptions", handlers.Admin.ListSubscriptions)
		admin.GET("/subscriptions/:id", handlers.Admin.GetSubscription)
		admin.GET("/subscriptions/:id/history", handlers.Admin.GetSubscriptionHistory)
		admin.POST("/subscriptions/:id/charge", handlers.Admin.ChargeSubscription)
		admin.GET("/payments", handlers.Admin.ListPayments)
		admin.POST("/payments/:id/refund", handlers.Admin.RefundPayment)
		admin.GET("/invoices", handlers.Admin.ListInvoices)
		admin.GET("/payment-logs", handlers.Admin.ListPaymentLogs)
	}
}
