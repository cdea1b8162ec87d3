package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/siteassist/billing-engine/internal/api"
	v1 "github.com/siteassist/billing-engine/internal/api/v1"
	"github.com/siteassist/billing-engine/internal/config"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/httpclient"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/notification"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/repository"
	"github.com/siteassist/billing-engine/internal/scheduler"
	"github.com/siteassist/billing-engine/internal/service"
	"github.com/siteassist/billing-engine/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Billing arithmetic assumes UTC everywhere
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			validator.NewValidator,
			config.NewConfig,
			logger.NewLogger,

			postgres.NewDB,
			httpclient.NewDefaultClient,

			// Repositories
			repository.NewTenantRepository,
			repository.NewPlanRepository,
			repository.NewSubscriptionRepository,
			repository.NewInvoiceRepository,
			repository.NewPaymentRepository,
			repository.NewPaymentLogRepository,
			repository.NewCouponRepository,
			repository.NewUsageRepository,

			// Gateways and notifications
			gateway.NewRegistry,
			notification.NewLogSink,

			// Services
			service.NewServiceParams,
			service.NewPlanService,
			service.NewSubscriptionService,
			service.NewPaymentService,
			service.NewCouponService,
			service.NewUsageService,
			service.NewAutoPayService,
			service.NewReconcilerService,

			scheduler.New,

			provideHandlers,
			provideRouter,
		),
		fx.Invoke(startServer),
	)
	app.Run()
}

func provideHandlers(
	cfg *config.Configuration,
	log *logger.Logger,
	db *postgres.DB,
	planService service.PlanService,
	subscriptionService service.SubscriptionService,
	paymentService service.PaymentService,
	couponService service.CouponService,
	usageService service.UsageService,
	autoPayService service.AutoPayService,
	reconcilerService service.ReconcilerService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(db, log),
		Plan:         v1.NewPlanHandler(planService, log),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, log),
		Payment:      v1.NewPaymentHandler(paymentService, log),
		Webhook:      v1.NewWebhookHandler(reconcilerService, log),
		Usage:        v1.NewUsageHandler(usageService, subscriptionService, log),
		Coupon:       v1.NewCouponHandler(couponService, log),
		Admin:        v1.NewAdminHandler(subscriptionService, paymentService, autoPayService, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, log)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	sched *scheduler.Scheduler,
	db *postgres.DB,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start(context.Background())

			go func() {
				log.Infow("starting server", "address", cfg.Server.Address)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			if err := srv.Shutdown(ctx); err != nil {
				log.Errorw("server shutdown failed", "error", err)
			}
			db.Close()
			return nil
		},
	})
}
