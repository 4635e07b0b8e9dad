package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/domain"
)

const (
	minExternalID = 100000
	maxExternalID = 999999

	// maxAmountCents caps generated amounts at 1000.00.
	maxAmountCents = 100000
)

// Dataset contains generated transactions.
type Dataset struct {
	GeneratedAt  time.Time            `json:"generatedAt"`
	Seed         int64                `json:"seed"`
	Transactions []domain.Transaction `json:"transactions"`
}

// Synthesizer produces random transactions from a seeded source. It is not
// safe for concurrent use.
type Synthesizer struct {
	cfg           Config
	rand          *rand.Rand
	nameFragments nameFragments
	devices       []domain.DeviceData
}

// New returns a configured Synthesizer instance.
func New(cfg Config) *Synthesizer {
	def := DefaultConfig()
	if cfg.NumUsers <= 0 {
		cfg.NumUsers = def.NumUsers
	}
	if cfg.NumTransactions <= 0 {
		cfg.NumTransactions = def.NumTransactions
	}
	if cfg.Span <= 0 {
		cfg.Span = def.Span
	}
	if cfg.PromotionChance <= 0 {
		cfg.PromotionChance = def.PromotionChance
	}
	if cfg.DeviceShareChance <= 0 {
		cfg.DeviceShareChance = def.DeviceShareChance
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Synthesizer{
		cfg:           cfg,
		rand:          rand.New(rand.NewSource(cfg.Seed)),
		nameFragments: defaultNameFragments(),
	}
}

// Next returns one random USD/US transaction stamped at now with a random type
// and an amount in (0, 1000] with two decimals. The external id is left zero so
// the recorder assigns it and redraws on collision.
func (g *Synthesizer) Next(now time.Time) domain.Transaction {
	amount := g.randomAmount()
	details := domain.AmountDetails{
		TransactionAmount:   amount,
		TransactionCurrency: domain.CurrencyUSD,
		Country:             domain.CountryUS,
	}
	return domain.Transaction{
		Type:                     g.randomTransactionType(),
		Timestamp:                now.UTC(),
		OriginUserID:             g.randomUserID(),
		DestinationUserID:        g.randomUserID(),
		OriginAmountDetails:      details,
		DestinationAmountDetails: details,
		Tags:                     []domain.Tag{},
	}
}

// Generate synthesises a dataset of cfg.NumTransactions transactions between
// cfg.NumUsers users. External ids are unique within the dataset. It respects
// context cancellation.
func (g *Synthesizer) Generate(ctx context.Context) (Dataset, error) {
	if g.cfg.NumTransactions > maxExternalID-minExternalID+1 {
		return Dataset{}, fmt.Errorf("cannot generate %d transactions with unique six digit ids", g.cfg.NumTransactions)
	}

	now := time.Now().UTC().Truncate(time.Second)
	users := make([]string, g.cfg.NumUsers)
	for i := range users {
		users[i] = fmt.Sprintf("USR-%06d", i+1)
	}

	seen := make(map[int64]struct{}, g.cfg.NumTransactions)
	transactions := make([]domain.Transaction, g.cfg.NumTransactions)
	for i := range transactions {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}

		id := g.randomExternalID()
		for {
			if _, dup := seen[id]; !dup {
				break
			}
			id = g.randomExternalID()
		}
		seen[id] = struct{}{}

		senderIdx := g.rand.Intn(len(users))
		receiverIdx := g.rand.Intn(len(users))
		if senderIdx == receiverIdx && len(users) > 1 {
			receiverIdx = (receiverIdx + 1) % len(users)
		}

		amount := g.randomAmount()
		currency := domain.Currencies[g.rand.Intn(len(domain.Currencies))]
		origin := domain.AmountDetails{
			TransactionAmount:   amount,
			TransactionCurrency: currency,
			Country:             domain.Countries[g.rand.Intn(len(domain.Countries))],
		}
		destination := domain.AmountDetails{
			TransactionAmount:   amount,
			TransactionCurrency: currency,
			Country:             domain.Countries[g.rand.Intn(len(domain.Countries))],
		}

		transactions[i] = domain.Transaction{
			TransactionID:            id,
			Type:                     g.randomTransactionType(),
			Timestamp:                now.Add(-time.Duration(g.rand.Int63n(int64(g.cfg.Span/time.Second))) * time.Second),
			OriginUserID:             users[senderIdx],
			DestinationUserID:        users[receiverIdx],
			OriginAmountDetails:      origin,
			DestinationAmountDetails: destination,
			PromotionCodeUsed:        g.rand.Float64() < g.cfg.PromotionChance,
			Reference:                g.randomNote(),
			OriginDeviceData:         g.maybeSharedDevice(),
			DestinationDeviceData:    g.maybeSharedDevice(),
			Tags:                     []domain.Tag{{Key: "channel", Value: g.randomChannel()}},
		}
	}

	return Dataset{GeneratedAt: now, Seed: g.cfg.Seed, Transactions: transactions}, nil
}

func (g *Synthesizer) randomExternalID() int64 {
	return int64(minExternalID + g.rand.Intn(maxExternalID-minExternalID+1))
}

func (g *Synthesizer) randomAmount() decimal.Decimal {
	cents := 1 + g.rand.Int63n(maxAmountCents)
	return decimal.New(cents, -2)
}

func (g *Synthesizer) randomTransactionType() domain.TransactionType {
	return domain.TransactionTypes[g.rand.Intn(len(domain.TransactionTypes))]
}

func (g *Synthesizer) randomUserID() string {
	return fmt.Sprintf("%s-%04d",
		g.nameFragments.first[g.rand.Intn(len(g.nameFragments.first))],
		g.rand.Intn(10000))
}

func (g *Synthesizer) maybeSharedDevice() domain.DeviceData {
	if len(g.devices) > 0 && g.rand.Float64() < g.cfg.DeviceShareChance {
		return g.devices[g.rand.Intn(len(g.devices))]
	}
	battery := float64(g.rand.Intn(101)) / 100
	lat := g.rand.Float64()*180 - 90
	lng := g.rand.Float64()*360 - 180
	vpn := g.rand.Float64() < 0.15
	maker := g.nameFragments.deviceMakers[g.rand.Intn(len(g.nameFragments.deviceMakers))]
	device := domain.DeviceData{
		BatteryLevel:     &battery,
		DeviceLatitude:   &lat,
		DeviceLongitude:  &lng,
		IPAddress:        g.randomIP(),
		DeviceIdentifier: fmt.Sprintf("device-%06d", g.rand.Intn(999999)),
		VPNUsed:          &vpn,
		OperatingSystem:  g.nameFragments.operatingSystems[g.rand.Intn(len(g.nameFragments.operatingSystems))],
		DeviceMaker:      maker,
		DeviceModel:      fmt.Sprintf("%s %d", maker, 1+g.rand.Intn(15)),
		DeviceYear:       fmt.Sprintf("%d", 2016+g.rand.Intn(9)),
		AppVersion:       fmt.Sprintf("%d.%d.%d", 1+g.rand.Intn(3), g.rand.Intn(10), g.rand.Intn(20)),
	}
	g.devices = append(g.devices, device)
	return device
}

func (g *Synthesizer) randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", g.rand.Intn(223)+1, g.rand.Intn(256), g.rand.Intn(256), g.rand.Intn(256))
}

func (g *Synthesizer) randomChannel() string {
	channels := []string{"WEB", "MOBILE", "POS", "API"}
	return channels[g.rand.Intn(len(channels))]
}

func (g *Synthesizer) randomNote() string {
	notes := []string{"Invoice settlement", "Freelance payout", "Peer transfer", "Market purchase", "Rent", "Subscription"}
	return notes[g.rand.Intn(len(notes))]
}

type nameFragments struct {
	first            []string
	deviceMakers     []string
	operatingSystems []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:            []string{"jane", "john", "alex", "priya", "liu", "maria", "omar", "sofia", "noah", "emma", "lucas", "mia", "ava", "ethan", "zara"},
		deviceMakers:     []string{"Apple", "Samsung", "Google", "OnePlus", "Xiaomi"},
		operatingSystems: []string{"iOS", "Android"},
	}
}
