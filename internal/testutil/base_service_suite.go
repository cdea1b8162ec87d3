package testutil

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/config"
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	"github.com/siteassist/billing-engine/internal/domain/tenant"
	"github.com/siteassist/billing-engine/internal/domain/usage"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/postgres"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/siteassist/billing-engine/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	TenantRepo     tenant.Repository
	PlanRepo       plan.Repository
	SubRepo        subscription.Repository
	InvoiceRepo    invoice.Repository
	PaymentRepo    payment.Repository
	PaymentLogRepo paymentlog.Repository
	CouponRepo     coupon.Repository
	UsageRepo      usage.Repository
}

// GatewayFakes holds one scriptable adapter per supported gateway.
type GatewayFakes struct {
	Stripe   *FakeGatewayAdapter
	Razorpay *FakeGatewayAdapter
	PayPal   *FakeGatewayAdapter
}

// BaseServiceTestSuite provides common functionality for all service
// test suites: fresh in-memory stores, fake gateways and a tenant
// scoped context per test.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	stores   Stores
	fakes    GatewayFakes
	gateways *gateway.Registry
	sink     *RecordingSink
	db       postgres.IClient
	logger   *logger.Logger
	config   *config.Configuration
	now      time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.logger = logger.NewNopLogger()
	s.db = NewMockPostgresClient()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = context.Background()
	s.ctx = context.WithValue(s.ctx, types.CtxTenantID, types.DefaultTenantID)
	s.ctx = context.WithValue(s.ctx, types.CtxUserID, types.DefaultUserID)
	s.ctx = context.WithValue(s.ctx, types.CtxRequestID, types.GenerateUUID())
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		TenantRepo:     NewInMemoryTenantStore(),
		PlanRepo:       NewInMemoryPlanStore(),
		SubRepo:        NewInMemorySubscriptionStore(),
		InvoiceRepo:    NewInMemoryInvoiceStore(),
		PaymentRepo:    NewInMemoryPaymentStore(),
		PaymentLogRepo: NewInMemoryPaymentLogStore(),
		CouponRepo:     NewInMemoryCouponStore(),
		UsageRepo:      NewInMemoryUsageStore(),
	}

	s.fakes = GatewayFakes{
		Stripe:   NewFakeGatewayAdapter(types.PaymentGatewayStripe),
		Razorpay: NewFakeGatewayAdapter(types.PaymentGatewayRazorpay),
		PayPal:   NewFakeGatewayAdapter(types.PaymentGatewayPayPal),
	}
	s.gateways = gateway.NewRegistryWithAdapters(s.fakes.Stripe, s.fakes.Razorpay, s.fakes.PayPal)
	s.sink = NewRecordingSink()
}

// GetContext returns the test context, scoped to the default tenant
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetGateways returns the registry backed by the fake adapters
func (s *BaseServiceTestSuite) GetGateways() *gateway.Registry {
	return s.gateways
}

// GetGatewayFakes returns the scriptable adapters for behavior setup
func (s *BaseServiceTestSuite) GetGatewayFakes() GatewayFakes {
	return s.fakes
}

// GetSink returns the recording notification sink
func (s *BaseServiceTestSuite) GetSink() *RecordingSink {
	return s.sink
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
