package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/charge"
	"golang.org/x/time/rate"

	"github.com/Alias1177/MerchantScope/internal/model"
	httpClient "github.com/Alias1177/MerchantScope/internal/platform/http"
)

const sourceName = "stripe"

// zeroDecimal lists currencies whose amounts have no minor unit
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true,
	"xpf": true,
}

// threeDecimal lists currencies with three minor digits
var threeDecimal = map[string]bool{
	"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
}

// StripeService reads charges of connected accounts. Every merchant is a
// connected account id and is passed as the Stripe-Account header.
type StripeService struct {
	charges *charge.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// StripeOptions holds options for creating a StripeService
type StripeOptions struct {
	APIKey         string
	RequestsPerSec int
	// Backend overrides the API backend, mainly in tests
	Backend stripe.Backend
}

// NewStripeService creates a new Stripe detail source
func NewStripeService(opts StripeOptions) *StripeService {
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 20
	}
	backend := opts.Backend
	if backend == nil {
		// retries are owned by the pipeline's retry policy
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(0),
		})
	}

	return &StripeService{
		charges: &charge.Client{B: backend, Key: opts.APIKey},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		logger:  log.With().Str("component", "stripe").Logger(),
	}
}

// FetchRecords lists the succeeded charges created inside the window, oldest first
func (s *StripeService) FetchRecords(ctx context.Context, entityID string, window model.Window) ([]model.TransactionRecord, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewDataSourceError(sourceName, model.KindRateLimit, err)
	}

	params := &stripe.ChargeListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: window.Start.Unix(),
			LesserThan:         window.End.Unix(),
		},
	}
	params.Limit = stripe.Int64(100)
	params.Context = ctx
	params.SetStripeAccount(entityID)

	var records []model.TransactionRecord
	iter := s.charges.List(params)
	for iter.Next() {
		c := iter.Charge()
		// failed and pending charges never settled, so they are not part of the amounts screened
		if c.Status != stripe.ChargeStatusSucceeded || c.Amount <= 0 {
			continue
		}
		records = append(records, ToRecord(entityID, c))
	}
	if err := iter.Err(); err != nil {
		return nil, classify(ctx, fmt.Errorf("listing charges of %s: %w", entityID, err))
	}

	// Stripe lists newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	s.logger.Debug().Str("entity_id", entityID).Int("count", len(records)).Msg("Fetched charges")
	if records == nil {
		records = []model.TransactionRecord{}
	}
	return records, nil
}

// ToRecord converts a Stripe charge into a transaction record
func ToRecord(entityID string, c *stripe.Charge) model.TransactionRecord {
	currency := strings.ToLower(string(c.Currency))
	rec := model.TransactionRecord{
		TransactionID: c.ID,
		EntityID:      entityID,
		Amount:        MajorUnits(c.Amount, currency),
		Currency:      strings.ToUpper(currency),
		Timestamp:     time.Unix(c.Created, 0).UTC(),
		Status:        string(c.Status),
	}
	if c.PaymentMethodDetails != nil {
		rec.PaymentMethod = string(c.PaymentMethodDetails.Type)
	}
	return rec
}

// MajorUnits converts an amount in the currency's smallest unit
func MajorUnits(amount int64, currency string) float64 {
	currency = strings.ToLower(currency)
	exp := int32(2)
	if zeroDecimal[currency] {
		exp = 0
	} else if threeDecimal[currency] {
		exp = 3
	}
	f, _ := decimal.New(amount, -exp).Float64()
	return f
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		kind := httpClient.ClassifyStatus(stripeErr.HTTPStatusCode)
		if stripeErr.HTTPStatusCode == 0 {
			kind = model.KindConnection
		}
		// an unknown or revoked connected account
		if stripeErr.Code == stripe.ErrorCodeAccountInvalid {
			kind = model.KindNotFound
		}
		return model.NewDataSourceError(sourceName, kind, err)
	}

	return model.NewDataSourceError(sourceName, model.KindConnection, err)
}
