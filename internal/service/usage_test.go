package service

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/testutil"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type UsageServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  UsageService
	testData struct {
		plan *plan.Plan
		sub  *subscription.Subscription
	}
}

func TestUsageService(t *testing.T) {
	suite.Run(t, new(UsageServiceSuite))
}

func (s *UsageServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewUsageService(newTestParams(&s.BaseServiceTestSuite))
	s.setupTestData()
}

func (s *UsageServiceSuite) setupTestData() {
	ctx := s.GetContext()

	agents := int64(3)
	conversations := int64(100)
	s.testData.plan = &plan.Plan{
		ID:           "plan_test_usage",
		Name:         "Starter",
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(9),
		AnnualPrice:  decimal.NewFromInt(90),
		Limits: types.PlanLimits{
			types.MetricAgents:        &agents,
			types.MetricConversations: &conversations,
		},
		Active:    true,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().PlanRepo.Create(ctx, s.testData.plan))

	periodEnd, err := types.NextBillingDate(s.GetNow(), types.BILLING_CYCLE_MONTHLY)
	s.Require().NoError(err)
	s.testData.sub = &subscription.Subscription{
		ID:                 "subs_test_usage",
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BillingCycle:       types.BILLING_CYCLE_MONTHLY,
		Currency:           "usd",
		StartDate:          s.GetNow(),
		CurrentPeriodStart: s.GetNow(),
		CurrentPeriodEnd:   periodEnd,
		Gateway:            types.PaymentGatewayStripe,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(ctx, s.testData.sub))
}

func (s *UsageServiceSuite) record(metric types.Metric, quantity int64) error {
	return s.service.RecordUsage(s.GetContext(), s.testData.sub.ID, &dto.RecordUsageRequest{
		Metric:   metric,
		Quantity: quantity,
	})
}

func (s *UsageServiceSuite) TestRecordAccumulates() {
	s.Require().NoError(s.record(types.MetricConversations, 3))
	s.Require().NoError(s.record(types.MetricConversations, 4))

	rec, err := s.GetStores().UsageRepo.Get(s.GetContext(), s.testData.sub.ID,
		types.MetricConversations, s.testData.sub.CurrentPeriodStart)
	s.Require().NoError(err)
	s.Equal(int64(7), rec.Quantity)
}

func (s *UsageServiceSuite) TestConcurrentRecording() {
	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.record(types.MetricMessages, 5))
		}()
	}
	wg.Wait()

	rec, err := s.GetStores().UsageRepo.Get(s.GetContext(), s.testData.sub.ID,
		types.MetricMessages, s.testData.sub.CurrentPeriodStart)
	s.Require().NoError(err)
	s.Equal(int64(writers*5), rec.Quantity)
}

func (s *UsageServiceSuite) TestRecordRejectsCancelledSubscription() {
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	err = s.record(types.MetricConversations, 1)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UsageServiceSuite) TestCheckLimit() {
	s.Require().NoError(s.record(types.MetricAgents, 2))

	result, err := s.service.CheckLimit(s.GetContext(), s.testData.sub.ID, types.MetricAgents)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(int64(2), result.Current)
	s.Require().NotNil(result.Limit)
	s.Equal(int64(3), *result.Limit)

	s.Require().NoError(s.record(types.MetricAgents, 1))

	result, err = s.service.CheckLimit(s.GetContext(), s.testData.sub.ID, types.MetricAgents)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.NotEmpty(result.Reason)
}

func (s *UsageServiceSuite) TestCheckLimitUnlimitedMetric() {
	// storage_mb has no cap on this plan
	result, err := s.service.CheckLimit(s.GetContext(), s.testData.sub.ID, types.MetricStorageMB)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Nil(result.Limit)
}

func (s *UsageServiceSuite) TestCheckLimitCancelledSubscription() {
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	result, err := s.service.CheckLimit(s.GetContext(), s.testData.sub.ID, types.MetricAgents)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal("subscription is cancelled", result.Reason)
}

func (s *UsageServiceSuite) TestSummaryListsEveryMetric() {
	s.Require().NoError(s.record(types.MetricConversations, 12))

	summary, err := s.service.GetUsageSummary(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(s.testData.sub.ID, summary.SubscriptionID)
	s.Require().Len(summary.Items, len(types.AllMetrics))

	byMetric := make(map[types.Metric]dto.UsageSummaryItem, len(summary.Items))
	for _, item := range summary.Items {
		byMetric[item.Metric] = item
	}

	s.Equal(int64(12), byMetric[types.MetricConversations].Used)
	s.True(byMetric[types.MetricConversations].Allowed)
	s.Equal(int64(0), byMetric[types.MetricAgents].Used)
	s.Nil(byMetric[types.MetricStorageMB].Limit)
	s.True(byMetric[types.MetricStorageMB].Allowed)
}
