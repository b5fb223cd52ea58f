package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/checkout"
	"ms-booking/internal/ledger"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/reservation"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPromoter struct {
	mock.Mock
}

func (m *MockPromoter) Promote(ctx context.Context, token string) (*models.BookingDraft, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingDraft), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, draft *models.BookingDraft, payment models.PaymentInfo) (string, error) {
	args := m.Called(draft, payment)
	return args.String(0), args.Error(1)
}

var draft = &models.BookingDraft{
	BookingID:   "bk-1",
	HoldToken:   "hold-1",
	ScreeningID: "show-1",
	SeatIDs:     []string{"A1", "A2"},
	TotalAmount: 500,
	PromotedAt:  time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC),
}

var validRequest = models.PromoteRequest{UserID: "u1", PaymentMethod: "UPI", PaymentConfirmation: "pay_1"}

func TestConfirm_PromotesThenRecords(t *testing.T) {
	promoter, recorder := new(MockPromoter), new(MockRecorder)
	promoter.On("Promote", "hold-1").Return(draft, nil)
	recorder.On("Record", draft, models.PaymentInfo{UserID: "u1", Method: models.PaymentUPI, Confirmation: "pay_1"}).Return("bk-1", nil)
	svc := checkout.NewService(promoter, recorder, logger.NewTestLogger(nil))

	confirmation, err := svc.Confirm(context.Background(), "hold-1", validRequest)
	require.NoError(t, err)
	assert.Equal(t, "bk-1", confirmation.BookingID)
	assert.Equal(t, models.BookingConfirmed, confirmation.Status)
	assert.True(t, confirmation.Persisted)
	assert.Equal(t, 500.0, confirmation.TotalAmount)
	promoter.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestConfirm_PersistenceFailureStillConfirms(t *testing.T) {
	promoter, recorder := new(MockPromoter), new(MockRecorder)
	promoter.On("Promote", "hold-1").Return(draft, nil)
	recorder.On("Record", draft, mock.Anything).Return("bk-1", fmt.Errorf("%w: timeout", ledger.ErrPersistence))
	svc := checkout.NewService(promoter, recorder, logger.NewTestLogger(nil))

	confirmation, err := svc.Confirm(context.Background(), "hold-1", validRequest)
	require.NoError(t, err)
	assert.Equal(t, "bk-1", confirmation.BookingID)
	assert.False(t, confirmation.Persisted)
}

func TestConfirm_InvalidPaymentLeavesHoldAlone(t *testing.T) {
	cases := []struct {
		name string
		req  models.PromoteRequest
	}{
		{"missing user", models.PromoteRequest{PaymentConfirmation: "pay_1"}},
		{"missing confirmation", models.PromoteRequest{UserID: "u1"}},
		{"unknown method", models.PromoteRequest{UserID: "u1", PaymentMethod: "cash", PaymentConfirmation: "pay_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			promoter := new(MockPromoter)
			svc := checkout.NewService(promoter, new(MockRecorder), logger.NewTestLogger(nil))

			_, err := svc.Confirm(context.Background(), "hold-1", tc.req)
			assert.True(t, errors.Is(err, checkout.ErrInvalidPayment))
			promoter.AssertNotCalled(t, "Promote", mock.Anything)
		})
	}
}

func TestConfirm_PromoteRejectionPassesThrough(t *testing.T) {
	promoter, recorder := new(MockPromoter), new(MockRecorder)
	promoter.On("Promote", "hold-1").Return(nil, &reservation.Rejection{Reason: reservation.ReasonExpired})
	svc := checkout.NewService(promoter, recorder, logger.NewTestLogger(nil))

	_, err := svc.Confirm(context.Background(), "hold-1", validRequest)
	var rejection *reservation.Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, reservation.ReasonExpired, rejection.Reason)
	recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestConfirm_DefaultsToCard(t *testing.T) {
	promoter, recorder := new(MockPromoter), new(MockRecorder)
	promoter.On("Promote", "hold-1").Return(draft, nil)
	recorder.On("Record", draft, mock.MatchedBy(func(p models.PaymentInfo) bool { return p.Method == models.PaymentCard })).Return("bk-1", nil)
	svc := checkout.NewService(promoter, recorder, logger.NewTestLogger(nil))

	_, err := svc.Confirm(context.Background(), "hold-1", models.PromoteRequest{UserID: "u1", PaymentConfirmation: "pay_1"})
	require.NoError(t, err)
	recorder.AssertExpectations(t)
}
