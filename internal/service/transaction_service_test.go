package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/domain"
	"github.com/vanshika/mint/internal/logging"
)

type stubRepository struct {
	mu           sync.Mutex
	stored       map[int64]domain.Transaction
	inserts      int
	duplicates   int
	insertErr    error
	queries      int
	summary      []domain.TypeSummary
	total        decimal.Decimal
	searchResult []domain.Transaction
	lastType     domain.TransactionType
}

func newStubRepository() *stubRepository {
	return &stubRepository{stored: map[int64]domain.Transaction{}}
}

func (s *stubRepository) Insert(ctx context.Context, tx domain.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.duplicates > 0 {
		s.duplicates--
		return 0, fmt.Errorf("%w: %d", ErrDuplicateTransaction, tx.TransactionID)
	}
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	if _, exists := s.stored[tx.TransactionID]; exists {
		return 0, ErrDuplicateTransaction
	}
	tx.ID = int64(len(s.stored) + 1)
	s.stored[tx.TransactionID] = tx
	return tx.TransactionID, nil
}

func (s *stubRepository) GetByExternalID(ctx context.Context, id int64) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.stored[id]
	if !ok {
		return domain.Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (s *stubRepository) SearchByAmount(ctx context.Context, amount decimal.Decimal) ([]domain.Transaction, error) {
	s.queries++
	return s.searchResult, nil
}

func (s *stubRepository) SearchByDateRange(ctx context.Context, start, end time.Time) ([]domain.Transaction, error) {
	s.queries++
	return s.searchResult, nil
}

func (s *stubRepository) SearchByType(ctx context.Context, txType domain.TransactionType) ([]domain.Transaction, error) {
	s.queries++
	s.lastType = txType
	return s.searchResult, nil
}

func (s *stubRepository) Summary(ctx context.Context, start, end time.Time) ([]domain.TypeSummary, error) {
	s.queries++
	return s.summary, nil
}

func (s *stubRepository) TotalAmount(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	s.queries++
	return s.total, nil
}

type stubProjector struct {
	projected []int64
	err       error
}

func (p *stubProjector) ProjectTransaction(ctx context.Context, tx domain.Transaction) error {
	p.projected = append(p.projected, tx.TransactionID)
	return p.err
}

func validInput() TransactionInput {
	return TransactionInput{
		Amount:        decimal.RequireFromString("125.50"),
		SenderID:      "  alice ",
		DestinationID: "bob",
		Type:          "deposit",
		Currency:      "usd",
		Country:       "us",
	}
}

func TestCreateStoresCanonicalRecord(t *testing.T) {
	repo := newStubRepository()
	svc := NewTransactionService(repo, nil, logging.Discard())
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	svc.WithClock(func() time.Time { return now })
	svc.WithSeed(7)

	tx, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tx.TransactionID < minExternalID || tx.TransactionID > maxExternalID {
		t.Fatalf("external id %d out of range", tx.TransactionID)
	}
	if tx.Type != domain.TransactionTypeDeposit {
		t.Errorf("expected DEPOSIT, got %q", tx.Type)
	}
	if tx.OriginUserID != "alice" || tx.DestinationUserID != "bob" {
		t.Errorf("unexpected user ids %q -> %q", tx.OriginUserID, tx.DestinationUserID)
	}
	if tx.OriginAmountDetails != tx.DestinationAmountDetails {
		t.Errorf("expected both sides to share amount details, got %+v vs %+v", tx.OriginAmountDetails, tx.DestinationAmountDetails)
	}
	if tx.OriginAmountDetails.TransactionCurrency != domain.CurrencyUSD || tx.OriginAmountDetails.Country != domain.CountryUS {
		t.Errorf("unexpected amount details %+v", tx.OriginAmountDetails)
	}
	if !tx.Timestamp.Equal(now) || tx.Timestamp.Location() != time.UTC {
		t.Errorf("expected timestamp %v in UTC, got %v", now, tx.Timestamp)
	}

	got, err := svc.Get(context.Background(), tx.TransactionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TransactionID != tx.TransactionID || !got.OriginAmountDetails.TransactionAmount.Equal(decimal.RequireFromString("125.5")) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	cases := map[string]func(*TransactionInput){
		"zero amount":       func(in *TransactionInput) { in.Amount = decimal.Zero },
		"negative amount":   func(in *TransactionInput) { in.Amount = decimal.NewFromInt(-5) },
		"sub-cent amount":   func(in *TransactionInput) { in.Amount = decimal.RequireFromString("1.005") },
		"oversized amount":  func(in *TransactionInput) { in.Amount = decimal.New(1, 16) },
		"missing sender":    func(in *TransactionInput) { in.SenderID = "   " },
		"missing recipient": func(in *TransactionInput) { in.DestinationID = "" },
		"bad type":          func(in *TransactionInput) { in.Type = "LOAN" },
		"bad currency":      func(in *TransactionInput) { in.Currency = "GBP" },
		"bad country":       func(in *TransactionInput) { in.Country = "FR" },
		"id out of range":   func(in *TransactionInput) { in.TransactionID = 42 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newStubRepository()
			svc := NewTransactionService(repo, nil, logging.Discard())
			in := validInput()
			mutate(&in)

			_, err := svc.Create(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if repo.inserts != 0 {
				t.Fatalf("invalid input must not reach storage")
			}
		})
	}
}

func TestRecordRedrawsCollidingIDs(t *testing.T) {
	repo := newStubRepository()
	repo.duplicates = 2
	svc := NewTransactionService(repo, nil, logging.Discard())

	id, err := svc.Record(context.Background(), domain.Transaction{Type: domain.TransactionTypeOther})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if repo.inserts != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", repo.inserts)
	}
	if _, ok := repo.stored[id]; !ok {
		t.Fatalf("returned id %d not stored", id)
	}
}

func TestRecordKeepsCallerIDOnDuplicate(t *testing.T) {
	repo := newStubRepository()
	repo.duplicates = 1
	svc := NewTransactionService(repo, nil, logging.Discard())

	_, err := svc.Record(context.Background(), domain.Transaction{TransactionID: 123456, Type: domain.TransactionTypeOther})
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if repo.inserts != 1 {
		t.Fatalf("caller supplied ids must not be retried, got %d attempts", repo.inserts)
	}
}

func TestRecordProjectsButIgnoresProjectionFailure(t *testing.T) {
	repo := newStubRepository()
	projector := &stubProjector{err: errors.New("graph down")}
	svc := NewTransactionService(repo, projector, logging.Discard())

	id, err := svc.Record(context.Background(), domain.Transaction{TransactionID: 555555, Type: domain.TransactionTypeRefund})
	if err != nil {
		t.Fatalf("projection failure must not fail the write: %v", err)
	}
	if len(projector.projected) != 1 || projector.projected[0] != id {
		t.Fatalf("expected projection of %d, got %v", id, projector.projected)
	}
}

func TestRecordSkipsProjectionWhenInsertFails(t *testing.T) {
	repo := newStubRepository()
	repo.insertErr = errors.New("disk full")
	projector := &stubProjector{}
	svc := NewTransactionService(repo, projector, logging.Discard())

	if _, err := svc.Record(context.Background(), domain.Transaction{TransactionID: 555555}); err == nil {
		t.Fatal("expected insert error")
	}
	if len(projector.projected) != 0 {
		t.Fatalf("failed insert must not be projected")
	}
}

func TestRangeQueriesValidateBeforeStorage(t *testing.T) {
	repo := newStubRepository()
	svc := NewTransactionService(repo, nil, logging.Discard())
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	equal := DateRange{Start: day, End: day}
	reversed := DateRange{Start: day.Add(time.Hour), End: day}

	var verr *ValidationError
	if _, err := svc.Summary(ctx, equal); !errors.As(err, &verr) {
		t.Fatalf("summary with end == start: expected ValidationError, got %v", err)
	}
	if _, err := svc.TotalAmount(ctx, reversed); !errors.As(err, &verr) {
		t.Fatalf("total with end < start: expected ValidationError, got %v", err)
	}
	if _, err := svc.SearchByDateRange(ctx, reversed); !errors.As(err, &verr) {
		t.Fatalf("search with end < start: expected ValidationError, got %v", err)
	}
	if repo.queries != 0 {
		t.Fatalf("rejected ranges must not query storage, got %d queries", repo.queries)
	}

	if _, err := svc.SearchByDateRange(ctx, equal); err != nil {
		t.Fatalf("single instant search should be allowed: %v", err)
	}
	if repo.queries != 1 {
		t.Fatalf("expected one query, got %d", repo.queries)
	}
}

func TestTotalAmountEchoesRange(t *testing.T) {
	repo := newStubRepository()
	repo.total = decimal.NewFromInt(350)
	svc := NewTransactionService(repo, nil, logging.Discard())
	r := DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

	got, err := svc.TotalAmount(context.Background(), r)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if !got.TotalAmount.Equal(decimal.NewFromInt(350)) || !got.Start.Equal(r.Start) || !got.End.Equal(r.End) {
		t.Fatalf("unexpected total %+v", got)
	}
}

func TestSearchByTypeNormalisesName(t *testing.T) {
	repo := newStubRepository()
	svc := NewTransactionService(repo, nil, logging.Discard())

	if _, err := svc.SearchByType(context.Background(), " external_payment "); err != nil {
		t.Fatalf("search: %v", err)
	}
	if repo.lastType != domain.TransactionTypeExternalPayment {
		t.Fatalf("expected normalised type, got %q", repo.lastType)
	}

	var verr *ValidationError
	if _, err := svc.SearchByType(context.Background(), "bogus"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGetRejectsNonPositiveID(t *testing.T) {
	svc := NewTransactionService(newStubRepository(), nil, logging.Discard())
	var verr *ValidationError
	if _, err := svc.Get(context.Background(), 0); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := svc.Get(context.Background(), 123456); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, in := range []string{"2024-05-06T07:08:09Z", "2024-05-06T09:08:09+02:00", "2024-05-06T07:08:09", "2024-05-06 07:08:09"} {
		got, err := ParseDate("start_date", in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("parse %q = %v, want %v", in, got, want)
		}
	}

	day, err := ParseDate("start_date", "2024-05-06")
	if err != nil || !day.Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bare date parsed as %v (%v)", day, err)
	}

	var verr *ValidationError
	if _, err := ParseDate("end_date", "yesterday"); !errors.As(err, &verr) || verr.Field != "end_date" {
		t.Fatalf("expected end_date ValidationError, got %v", err)
	}
	if _, err := ParseDateRange("2024-01-01", ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing end, got %v", err)
	}
}
