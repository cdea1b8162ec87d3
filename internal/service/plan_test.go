package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/testutil"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type PlanServiceSuite struct {
	testutil.BaseServiceTestSuite
	service PlanService
}

func TestPlanService(t *testing.T) {
	suite.Run(t, new(PlanServiceSuite))
}

func (s *PlanServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewPlanService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *PlanServiceSuite) createPlan(name string, public bool) *dto.PlanResponse {
	agents := int64(5)
	resp, err := s.service.CreatePlan(s.GetContext(), &dto.CreatePlanRequest{
		Name:         name,
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(29),
		AnnualPrice:  decimal.NewFromInt(290),
		TrialDays:    14,
		Limits:       types.PlanLimits{types.MetricAgents: &agents},
		Active:       true,
		Public:       public,
	})
	s.Require().NoError(err)
	return resp
}

func (s *PlanServiceSuite) TestCreateAndGet() {
	created := s.createPlan("Growth", true)

	got, err := s.service.GetPlan(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Equal("Growth", got.Name)
	s.True(got.MonthlyPrice.Equal(decimal.NewFromInt(29)))
	s.Equal(14, got.TrialDays)
	s.Require().NotNil(got.Limits.Limit(types.MetricAgents))
	s.Equal(int64(5), *got.Limits.Limit(types.MetricAgents))
}

func (s *PlanServiceSuite) TestCreateRejectsBadCurrency() {
	_, err := s.service.CreatePlan(s.GetContext(), &dto.CreatePlanRequest{
		Name:         "Broken",
		Currency:     "us",
		MonthlyPrice: decimal.NewFromInt(29),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *PlanServiceSuite) TestUpdateAppliesOnlyPresentFields() {
	created := s.createPlan("Growth", true)

	resp, err := s.service.UpdatePlan(s.GetContext(), created.ID, &dto.UpdatePlanRequest{
		Name:         types.Patch[string]{Present: true, Value: "Growth v2"},
		MonthlyPrice: types.Patch[decimal.Decimal]{Present: true, Value: decimal.NewFromInt(39)},
	})
	s.Require().NoError(err)
	s.Equal("Growth v2", resp.Name)
	s.True(resp.MonthlyPrice.Equal(decimal.NewFromInt(39)))

	// Fields without a patch keep their values.
	s.True(resp.AnnualPrice.Equal(decimal.NewFromInt(290)))
	s.Equal(14, resp.TrialDays)
	s.True(resp.Public)
}

func (s *PlanServiceSuite) TestUpdateClearsSecondaryCurrency() {
	inr := "inr"
	monthly := decimal.NewFromInt(2400)
	annual := decimal.NewFromInt(24000)
	created, err := s.service.CreatePlan(s.GetContext(), &dto.CreatePlanRequest{
		Name:                     "Regional",
		Currency:                 "usd",
		MonthlyPrice:             decimal.NewFromInt(29),
		AnnualPrice:              decimal.NewFromInt(290),
		SecondaryCurrencyEnabled: true,
		SecondaryCurrency:        &inr,
		SecondaryMonthlyPrice:    &monthly,
		SecondaryAnnualPrice:     &annual,
		Active:                   true,
	})
	s.Require().NoError(err)

	resp, err := s.service.UpdatePlan(s.GetContext(), created.ID, &dto.UpdatePlanRequest{
		SecondaryCurrencyEnabled: types.Patch[bool]{Present: true, Value: false},
		SecondaryCurrency:        types.Patch[string]{Present: true, Value: ""},
	})
	s.Require().NoError(err)
	s.False(resp.SecondaryCurrencyEnabled)
	s.Nil(resp.SecondaryCurrency)
}

func (s *PlanServiceSuite) TestDeleteHidesPlan() {
	created := s.createPlan("Doomed", true)

	s.Require().NoError(s.service.DeletePlan(s.GetContext(), created.ID))

	_, err := s.service.GetPlan(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))

	// The soft-deleted row resolves as gone on a repeat delete too.
	err = s.service.DeletePlan(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *PlanServiceSuite) TestListFiltersPublicAndActive() {
	s.createPlan("Public A", true)
	s.createPlan("Public B", true)
	hidden := s.createPlan("Internal", false)

	_, err := s.service.UpdatePlan(s.GetContext(), hidden.ID, &dto.UpdatePlanRequest{
		Active: types.Patch[bool]{Present: true, Value: false},
	})
	s.Require().NoError(err)

	public := true
	resp, err := s.service.ListPlans(s.GetContext(), &types.PlanFilter{
		Filter: types.GetDefaultFilter(),
		Public: &public,
	})
	s.Require().NoError(err)
	s.Len(resp.Items, 2)

	active := true
	resp, err = s.service.ListPlans(s.GetContext(), &types.PlanFilter{
		Filter: types.GetDefaultFilter(),
		Active: &active,
	})
	s.Require().NoError(err)
	s.Len(resp.Items, 2)

	resp, err = s.service.ListPlans(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Len(resp.Items, 3)
}
