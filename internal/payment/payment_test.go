package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ministrysite/internal/ledger"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, p IntentParams) (*IntentResult, error) {
	args := m.Called(ctx, p)
	if res := args.Get(0); res != nil {
		return res.(*IntentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*Intent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	args := m.Called(ctx, email, name)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (*SubscriptionResult, error) {
	args := m.Called(ctx, p)
	if res := args.Get(0); res != nil {
		return res.(*SubscriptionResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingJournal struct {
	records []ledger.IntentCreated
}

func (j *recordingJournal) RecordIntentCreated(_ context.Context, rec ledger.IntentCreated) error {
	j.records = append(j.records, rec)
	return nil
}

func testConfig() Config {
	return Config{
		RegistrationLimits: Limits{Min: decimal.RequireFromString("0.01"), Max: decimal.NewFromInt(10000)},
		DonationLimits:     Limits{Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(10000)},
	}
}

func TestCreateIntentConvertsToMinorUnits(t *testing.T) {
	gw := new(mockGateway)
	journal := &recordingJournal{}
	svc := NewService(gw, nil, journal, testConfig())

	gw.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(p IntentParams) bool {
		return p.AmountCents == 5000 && p.Currency == "usd" && p.Metadata["eventId"] == "evt-1"
	})).Return(&IntentResult{IntentID: "pi_1", ClientSecret: "pi_1_secret", AmountCents: 5000, Currency: "usd"}, nil)

	res, err := svc.CreateIntent(context.Background(), IntentRequest{
		Purpose:  PurposeRegistration,
		Amount:   decimal.RequireFromString("50.00"),
		Email:    "ruth@example.org",
		EventID:  "evt-1",
		Metadata: map[string]string{"eventId": "evt-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	require.Len(t, journal.records, 1)
	assert.Equal(t, "pi_1", journal.records[0].IntentID)
	assert.Equal(t, int64(5000), journal.records[0].AmountCents)
	gw.AssertExpectations(t)
}

func TestCreateIntentRejectsOutOfBandBeforeGateway(t *testing.T) {
	gw := new(mockGateway)
	svc := NewService(gw, nil, nil, testConfig())

	_, err := svc.CreateIntent(context.Background(), IntentRequest{
		Purpose: PurposeDonation,
		Amount:  decimal.RequireFromString("9.99"),
		Email:   "a@example.org",
	})
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = svc.CreateIntent(context.Background(), IntentRequest{
		Purpose: PurposeRegistration,
		Amount:  decimal.NewFromInt(10001),
		Email:   "a@example.org",
	})
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
	gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
}

func TestDonationsAreNotJournaled(t *testing.T) {
	gw := new(mockGateway)
	journal := &recordingJournal{}
	svc := NewService(gw, nil, journal, testConfig())
	gw.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(&IntentResult{IntentID: "pi_d", ClientSecret: "s"}, nil)

	_, err := svc.CreateIntent(context.Background(), IntentRequest{Purpose: PurposeDonation, Amount: decimal.NewFromInt(25), Email: "a@example.org"})
	require.NoError(t, err)
	assert.Empty(t, journal.records)
}

func TestGatewayFailureIsProcessingFailed(t *testing.T) {
	gw := new(mockGateway)
	svc := NewService(gw, nil, nil, testConfig())
	gw.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(nil, errors.New("card network down"))

	_, err := svc.CreateIntent(context.Background(), IntentRequest{Purpose: PurposeRegistration, Amount: decimal.NewFromInt(20), Email: "a@example.org"})
	assert.ErrorIs(t, err, ErrProcessingFailed)
	status, msg := StatusFor(err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "payment processing failed", msg)
}

func TestCreateIntentReplaysCachedResult(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	cache := NewRedisIdempotency(db, time.Hour)
	gw := new(mockGateway)
	svc := NewService(gw, cache, nil, testConfig())

	req := IntentRequest{
		Purpose:        PurposeDonation,
		Amount:         decimal.NewFromInt(25),
		Email:          "a@example.org",
		IdempotencyKey: "key-1",
	}
	cached := &IntentResult{IntentID: "pi_9", ClientSecret: "pi_9_secret", AmountCents: 2500, Currency: "usd"}
	raw, err := json.Marshal(IdempotencyEntry{Fingerprint: Fingerprint(req, "usd"), Result: cached})
	require.NoError(t, err)
	rmock.ExpectGet(idempotencyPrefix + "key-1").SetVal(string(raw))

	res, err := svc.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, cached, res)
	gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestCreateIntentStoresNewResult(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	cache := NewRedisIdempotency(db, time.Hour)
	gw := new(mockGateway)
	svc := NewService(gw, cache, nil, testConfig())

	req := IntentRequest{
		Purpose:        PurposeDonation,
		Amount:         decimal.NewFromInt(10),
		Email:          "a@example.org",
		IdempotencyKey: "key-2",
	}
	created := &IntentResult{IntentID: "pi_2", ClientSecret: "pi_2_secret", AmountCents: 1000, Currency: "usd"}
	raw, err := json.Marshal(&IdempotencyEntry{Fingerprint: Fingerprint(req, "usd"), Result: created})
	require.NoError(t, err)
	rmock.ExpectGet(idempotencyPrefix + "key-2").RedisNil()
	rmock.ExpectSet(idempotencyPrefix+"key-2", raw, time.Hour).SetVal("OK")
	gw.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(p IntentParams) bool {
		return p.IdempotencyKey == "key-2"
	})).Return(created, nil)

	res, err := svc.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, created, res)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestCreateIntentRejectsReusedKeyForDifferentPayment(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	cache := NewRedisIdempotency(db, time.Hour)
	gw := new(mockGateway)
	svc := NewService(gw, cache, nil, testConfig())

	original := IntentRequest{
		Purpose:        PurposeRegistration,
		Amount:         decimal.NewFromInt(50),
		Email:          "a@example.org",
		EventID:        "evt-1",
		IdempotencyKey: "key-3",
	}
	raw, err := json.Marshal(IdempotencyEntry{
		Fingerprint: Fingerprint(original, "usd"),
		Result:      &IntentResult{IntentID: "pi_3", ClientSecret: "pi_3_secret", AmountCents: 5000, Currency: "usd"},
	})
	require.NoError(t, err)
	rmock.ExpectGet(idempotencyPrefix + "key-3").SetVal(string(raw))

	changed := original
	changed.Amount = decimal.NewFromInt(100)
	_, err = svc.CreateIntent(context.Background(), changed)

	assert.ErrorIs(t, err, ErrInvalidRequest)
	status, _ := StatusFor(err)
	assert.Equal(t, http.StatusBadRequest, status)
	gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestFingerprintDistinguishesCharges(t *testing.T) {
	base := IntentRequest{Purpose: PurposeRegistration, Amount: decimal.NewFromInt(50), Email: "a@example.org", EventID: "evt-1"}
	assert.Equal(t, Fingerprint(base, "usd"), Fingerprint(base, "USD"))

	for _, mutate := range []func(*IntentRequest){
		func(r *IntentRequest) { r.Amount = decimal.RequireFromString("50.01") },
		func(r *IntentRequest) { r.Purpose = PurposeDonation },
		func(r *IntentRequest) { r.EventID = "evt-2" },
		func(r *IntentRequest) { r.Email = "b@example.org" },
	} {
		other := base
		mutate(&other)
		assert.NotEqual(t, Fingerprint(base, "usd"), Fingerprint(other, "usd"))
	}
}

func TestCreateSubscription(t *testing.T) {
	gw := new(mockGateway)
	svc := NewService(gw, nil, nil, testConfig())
	gw.On("FindOrCreateCustomer", mock.Anything, "d@example.org", "Dee").Return("cus_1", nil)
	gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p SubscriptionParams) bool {
		return p.CustomerID == "cus_1" && p.AmountCents == 2000 && p.Currency == "usd"
	})).Return(&SubscriptionResult{SubscriptionID: "sub_1", CustomerID: "cus_1", ClientSecret: "pi_sub_secret"}, nil)

	res, err := svc.CreateSubscription(context.Background(), SubscriptionRequest{Amount: decimal.NewFromInt(20), Email: "d@example.org", Name: "Dee"})
	require.NoError(t, err)
	assert.Equal(t, "pi_sub_secret", res.ClientSecret)
	gw.AssertExpectations(t)
}

func TestRetrieveIntentNotFound(t *testing.T) {
	gw := new(mockGateway)
	svc := NewService(gw, nil, nil, testConfig())
	gw.On("RetrievePaymentIntent", mock.Anything, "pi_missing").Return(nil, ErrIntentNotFound)

	_, err := svc.RetrieveIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
	assert.NotErrorIs(t, err, ErrProcessingFailed)
}

func TestHandleDonationMonthly(t *testing.T) {
	gw := new(mockGateway)
	h := NewHandler(NewService(gw, nil, nil, testConfig()))
	gw.On("FindOrCreateCustomer", mock.Anything, "d@example.org", "Dee").Return("cus_1", nil)
	gw.On("CreateSubscription", mock.Anything, mock.Anything).Return(&SubscriptionResult{SubscriptionID: "sub_1", ClientSecret: "cs"}, nil)

	body := `{"amount": 50, "email": "d@example.org", "name": "Dee", "frequency": "monthly"}`
	rec := httptest.NewRecorder()
	h.HandleDonation(rec, httptest.NewRequest(http.MethodPost, "/api/donations", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"clientSecret":"cs","subscriptionId":"sub_1"}`, rec.Body.String())
}

func TestHandleDonationBelowMinimum(t *testing.T) {
	gw := new(mockGateway)
	h := NewHandler(NewService(gw, nil, nil, testConfig()))

	body := `{"amount": "5", "email": "d@example.org", "frequency": "one-time"}`
	rec := httptest.NewRecorder()
	h.HandleDonation(rec, httptest.NewRequest(http.MethodPost, "/api/donations", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
}
