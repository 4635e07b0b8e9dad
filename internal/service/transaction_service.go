package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/domain"
)

const (
	minExternalID = 100000
	maxExternalID = 999999

	// idAttempts bounds retries when a freshly drawn external id collides.
	idAttempts = 5
)

// maxAmount is the first value a NUMERIC(18,2) column cannot hold.
var maxAmount = decimal.New(1, 16)

// TransactionRepository is the storage contract required by the transaction service.
type TransactionRepository interface {
	Insert(ctx context.Context, tx domain.Transaction) (int64, error)
	GetByExternalID(ctx context.Context, transactionID int64) (domain.Transaction, error)
	SearchByAmount(ctx context.Context, amount decimal.Decimal) ([]domain.Transaction, error)
	SearchByDateRange(ctx context.Context, start, end time.Time) ([]domain.Transaction, error)
	SearchByType(ctx context.Context, txType domain.TransactionType) ([]domain.Transaction, error)
	Summary(ctx context.Context, start, end time.Time) ([]domain.TypeSummary, error)
	TotalAmount(ctx context.Context, start, end time.Time) (decimal.Decimal, error)
}

// Projector mirrors stored transactions into a secondary view.
type Projector interface {
	ProjectTransaction(ctx context.Context, tx domain.Transaction) error
}

// TransactionService validates requests and delegates persistence to the repository.
type TransactionService struct {
	repo      TransactionRepository
	projector Projector
	logger    *slog.Logger
	nowFn     func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTransactionService constructs a TransactionService. projector may be nil.
func NewTransactionService(repo TransactionRepository, projector Projector, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		repo:      repo,
		projector: projector,
		logger:    logger.With("component", "transactions"),
		nowFn:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *TransactionService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// WithSeed makes external id assignment deterministic.
func (s *TransactionService) WithSeed(seed int64) {
	s.mu.Lock()
	s.rnd = rand.New(rand.NewSource(seed))
	s.mu.Unlock()
}

// Create validates input, records the transaction and returns the stored record.
func (s *TransactionService) Create(ctx context.Context, input TransactionInput) (domain.Transaction, error) {
	tx, err := s.buildTransaction(input)
	if err != nil {
		return domain.Transaction{}, err
	}
	id, err := s.Record(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.repo.GetByExternalID(ctx, id)
}

// Record persists an already formed transaction and returns its external id.
// A zero TransactionID is replaced by a random id in [100000, 999999]; such
// ids are redrawn on collision.
func (s *TransactionService) Record(ctx context.Context, tx domain.Transaction) (int64, error) {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.nowFn()
	}
	tx.Timestamp = tx.Timestamp.UTC()

	assigned := tx.TransactionID == 0
	attempts := 1
	if assigned {
		attempts = idAttempts
	}

	var (
		id  int64
		err error
	)
	for i := 0; i < attempts; i++ {
		if assigned {
			tx.TransactionID = s.nextExternalID()
		}
		id, err = s.repo.Insert(ctx, tx)
		if err == nil || !errors.Is(err, ErrDuplicateTransaction) {
			break
		}
		s.logger.Debug("external id collision", "transactionId", tx.TransactionID)
	}
	if err != nil {
		return 0, err
	}

	s.project(ctx, tx)
	return id, nil
}

func (s *TransactionService) project(ctx context.Context, tx domain.Transaction) {
	if s.projector == nil {
		return
	}
	if err := s.projector.ProjectTransaction(ctx, tx); err != nil {
		s.logger.Warn("graph projection failed", "transactionId", tx.TransactionID, "error", err)
	}
}

func (s *TransactionService) nextExternalID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(minExternalID + s.rnd.Intn(maxExternalID-minExternalID+1))
}

// Get fetches one transaction by external id.
func (s *TransactionService) Get(ctx context.Context, transactionID int64) (domain.Transaction, error) {
	if transactionID <= 0 {
		return domain.Transaction{}, invalid("transaction_id", "must be a positive integer")
	}
	return s.repo.GetByExternalID(ctx, transactionID)
}

// SearchByAmount lists transactions whose origin amount equals amount.
func (s *TransactionService) SearchByAmount(ctx context.Context, amount decimal.Decimal) ([]domain.Transaction, error) {
	return s.repo.SearchByAmount(ctx, amount)
}

// SearchByDateRange lists transactions recorded within r; a single instant is allowed.
func (s *TransactionService) SearchByDateRange(ctx context.Context, r DateRange) ([]domain.Transaction, error) {
	if r.End.Before(r.Start) {
		return nil, invalid("end_date", "must not be before start_date")
	}
	return s.repo.SearchByDateRange(ctx, r.Start, r.End)
}

// SearchByType lists transactions of the given type name.
func (s *TransactionService) SearchByType(ctx context.Context, txType string) ([]domain.Transaction, error) {
	t, err := domain.ParseTransactionType(txType)
	if err != nil {
		return nil, invalid("type", "%v", err)
	}
	return s.repo.SearchByType(ctx, t)
}

// Summary groups transactions in r by type. r must have end after start.
func (s *TransactionService) Summary(ctx context.Context, r DateRange) ([]domain.TypeSummary, error) {
	if err := requireOrdered(r); err != nil {
		return nil, err
	}
	return s.repo.Summary(ctx, r.Start, r.End)
}

// TotalAmount sums origin amounts in r. r must have end after start.
func (s *TransactionService) TotalAmount(ctx context.Context, r DateRange) (TotalAmount, error) {
	if err := requireOrdered(r); err != nil {
		return TotalAmount{}, err
	}
	total, err := s.repo.TotalAmount(ctx, r.Start, r.End)
	if err != nil {
		return TotalAmount{}, err
	}
	return TotalAmount{Start: r.Start, End: r.End, TotalAmount: total}, nil
}

func requireOrdered(r DateRange) error {
	if !r.End.After(r.Start) {
		return invalid("end_date", "must be after start_date")
	}
	return nil
}

func (s *TransactionService) buildTransaction(input TransactionInput) (domain.Transaction, error) {
	if !input.Amount.IsPositive() {
		return domain.Transaction{}, invalid("amount", "must be greater than zero")
	}
	if input.Amount.GreaterThanOrEqual(maxAmount) {
		return domain.Transaction{}, invalid("amount", "must be less than %s", maxAmount.String())
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return domain.Transaction{}, invalid("amount", "must have at most two decimal places")
	}
	sender := sanitizeString(input.SenderID)
	if sender == "" {
		return domain.Transaction{}, invalid("sender_id", "is required")
	}
	destination := sanitizeString(input.DestinationID)
	if destination == "" {
		return domain.Transaction{}, invalid("destination_id", "is required")
	}
	txType, err := domain.ParseTransactionType(input.Type)
	if err != nil {
		return domain.Transaction{}, invalid("type", "%v", err)
	}
	currency, err := domain.ParseCurrency(input.Currency)
	if err != nil {
		return domain.Transaction{}, invalid("currency", "%v", err)
	}
	country, err := domain.ParseCountry(input.Country)
	if err != nil {
		return domain.Transaction{}, invalid("country", "%v", err)
	}
	if input.TransactionID != 0 && (input.TransactionID < minExternalID || input.TransactionID > maxExternalID) {
		return domain.Transaction{}, invalid("transactionId", "must be between %d and %d", minExternalID, maxExternalID)
	}

	details := domain.AmountDetails{
		TransactionAmount:   input.Amount.Round(2),
		TransactionCurrency: currency,
		Country:             country,
	}
	tx := domain.Transaction{
		TransactionID:            input.TransactionID,
		Type:                     txType,
		OriginUserID:             sender,
		DestinationUserID:        destination,
		OriginAmountDetails:      details,
		DestinationAmountDetails: details,
		PromotionCodeUsed:        input.PromotionCodeUsed,
		Reference:                sanitizeString(input.Reference),
		Tags:                     input.Tags,
	}
	if input.Timestamp != nil {
		tx.Timestamp = input.Timestamp.UTC()
	}
	if input.OriginDevice != nil {
		tx.OriginDeviceData = *input.OriginDevice
	}
	if input.DestinationDevice != nil {
		tx.DestinationDeviceData = *input.DestinationDevice
	}
	return tx, nil
}

