package service

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type CouponServiceSuite struct {
	testutil.BaseServiceTestSuite
	service CouponService
}

func TestCouponService(t *testing.T) {
	suite.Run(t, new(CouponServiceSuite))
}

func (s *CouponServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCouponService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *CouponServiceSuite) createCoupon(code string, maxRedemptions *int64) *dto.CouponResponse {
	resp, err := s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:           code,
		DiscountType:   coupon.DiscountTypePercent,
		Amount:         decimal.NewFromInt(25),
		MaxRedemptions: maxRedemptions,
	})
	s.Require().NoError(err)
	return resp
}

func (s *CouponServiceSuite) TestCreateAndValidate() {
	s.createCoupon("SPRING25", nil)

	check, err := s.service.ValidateCoupon(s.GetContext(), "SPRING25", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.True(check.Valid)
	s.True(check.Discount.Equal(decimal.NewFromInt(25)))
}

func (s *CouponServiceSuite) TestDuplicateCodeRejected() {
	s.createCoupon("ONCE", nil)

	_, err := s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:         "ONCE",
		DiscountType: coupon.DiscountTypePercent,
		Amount:       decimal.NewFromInt(10),
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *CouponServiceSuite) TestValidateUnknownCode() {
	check, err := s.service.ValidateCoupon(s.GetContext(), "NOPE", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.False(check.Valid)
	s.Equal("coupon not found", check.Reason)
	s.True(check.Discount.IsZero())
}

func (s *CouponServiceSuite) TestValidateOutsideWindow() {
	from := time.Now().UTC().Add(24 * time.Hour)
	until := from.Add(24 * time.Hour)
	_, err := s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:         "TOMORROW",
		DiscountType: coupon.DiscountTypePercent,
		Amount:       decimal.NewFromInt(15),
		ValidFrom:    &from,
		ValidUntil:   &until,
	})
	s.Require().NoError(err)

	check, err := s.service.ValidateCoupon(s.GetContext(), "TOMORROW", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.False(check.Valid)
	s.Equal("coupon is not active", check.Reason)
}

func (s *CouponServiceSuite) TestValidateExhausted() {
	one := int64(1)
	s.createCoupon("LAST1", &one)

	_, err := s.service.RedeemCoupon(s.GetContext(), "LAST1", decimal.NewFromInt(100), nil, nil)
	s.Require().NoError(err)

	check, err := s.service.ValidateCoupon(s.GetContext(), "LAST1", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.False(check.Valid)
	s.Equal("coupon redemption limit reached", check.Reason)
}

func (s *CouponServiceSuite) TestFlatDiscountClampedToAmount() {
	usd := "usd"
	_, err := s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:         "FLAT50",
		DiscountType: coupon.DiscountTypeFlat,
		Amount:       decimal.NewFromInt(50),
		Currency:     &usd,
	})
	s.Require().NoError(err)

	check, err := s.service.ValidateCoupon(s.GetContext(), "FLAT50", decimal.NewFromInt(29))
	s.Require().NoError(err)
	s.True(check.Valid)
	s.True(check.Discount.Equal(decimal.NewFromInt(29)))
}

func (s *CouponServiceSuite) TestRedemptionCapUnderConcurrency() {
	max := int64(5)
	s.createCoupon("CROWDED", &max)

	const attempts = 20
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RedeemCoupon(s.GetContext(), "CROWDED", decimal.NewFromInt(100), nil, nil)
			if err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	s.Equal(int(max), len(succeeded))

	c, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "CROWDED")
	s.Require().NoError(err)
	s.Equal(max, c.Redemptions)

	redemptions, err := s.GetStores().CouponRepo.ListRedemptions(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Len(redemptions, int(max))
}

func (s *CouponServiceSuite) TestRedeemRecordsLinks() {
	s.createCoupon("LINKED", nil)

	subID := "subs_linked"
	invID := "inv_linked"
	discount, err := s.service.RedeemCoupon(s.GetContext(), "LINKED", decimal.NewFromInt(80), &subID, &invID)
	s.Require().NoError(err)
	s.True(discount.Equal(decimal.NewFromInt(20)))

	c, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "LINKED")
	s.Require().NoError(err)
	redemptions, err := s.GetStores().CouponRepo.ListRedemptions(s.GetContext(), c.ID)
	s.Require().NoError(err)
	s.Require().Len(redemptions, 1)
	s.Require().NotNil(redemptions[0].SubscriptionID)
	s.Equal(subID, *redemptions[0].SubscriptionID)
	s.Require().NotNil(redemptions[0].InvoiceID)
	s.Equal(invID, *redemptions[0].InvoiceID)
	s.True(redemptions[0].Amount.Equal(discount))
}
