// Package adapters provides in-memory reference implementations of the
// mobile-money and settlement adapter contracts. They honor the same
// semantic guarantees external plug-ins must: idempotency keyed by
// reference, monotonic status transitions, and provider rate limits.
package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// MMOConfig configures the in-memory mobile-money adapter.
type MMOConfig struct {
	Provider     string
	Countries    []contracts.CountryCode
	Limits       contracts.ProviderLimits
	ConfirmAfter time.Duration // delay before Status reports confirmed
	CacheTTL     time.Duration // response cache for Status lookups; 0 disables
}

// InMemoryMMO is a reference MMOAdapter. Initiate is idempotent keyed
// by the transaction reference.
type InMemoryMMO struct {
	cfg MMOConfig
	log *zap.Logger

	mu          sync.Mutex
	byReference map[string]*contracts.MMOTransaction
	submittedAt map[string]time.Time
	cache       map[string]cachedStatus
	minuteMarks []time.Time
	hourMarks   []time.Time
	scripted    []error
	balances    map[string]*contracts.Balance
}

type cachedStatus struct {
	tx       contracts.MMOTransaction
	cachedAt time.Time
}

// NewInMemoryMMO creates the reference mobile-money adapter.
func NewInMemoryMMO(cfg MMOConfig, log *zap.Logger) *InMemoryMMO {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryMMO{
		cfg:         cfg,
		log:         log,
		byReference: make(map[string]*contracts.MMOTransaction),
		submittedAt: make(map[string]time.Time),
		cache:       make(map[string]cachedStatus),
		balances:    make(map[string]*contracts.Balance),
	}
}

// ScriptFailures queues errors returned by subsequent Initiate calls,
// one per call, before normal processing resumes. Test hook.
func (m *InMemoryMMO) ScriptFailures(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, errs...)
}

// SetBalance seeds a subject balance.
func (m *InMemoryMMO) SetBalance(subject string, available decimal.Decimal, currency contracts.CurrencyCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[subject] = &contracts.Balance{Subject: subject, Available: available, Currency: currency}
}

// Initiate submits a mobile-money transaction. Repeated calls with the
// same reference return the already-submitted transaction.
func (m *InMemoryMMO) Initiate(ctx context.Context, tx *contracts.MMOTransaction) (*contracts.MMOTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mmo initiate: %w", contracts.ErrCancelled)
	}
	if tx == nil || tx.Reference == "" {
		return nil, fmt.Errorf("mmo initiate: missing reference: %w", contracts.ErrValidationFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.scripted) > 0 {
		err := m.scripted[0]
		m.scripted = m.scripted[1:]
		if err != nil {
			return nil, err
		}
	}

	// Idempotency: a known reference short-circuits before limits.
	if existing, ok := m.byReference[tx.Reference]; ok {
		copied := *existing
		return &copied, nil
	}

	if !m.countrySupported(tx.Country) {
		return nil, fmt.Errorf("mmo initiate: country %s unsupported: %w", tx.Country, contracts.ErrAdapterPermanent)
	}
	if tx.Amount.LessThan(m.cfg.Limits.MinAmount) ||
		(m.cfg.Limits.MaxAmount.IsPositive() && tx.Amount.GreaterThan(m.cfg.Limits.MaxAmount)) {
		return nil, fmt.Errorf("mmo initiate: amount %s outside limits: %w", tx.Amount, contracts.ErrAdapterPermanent)
	}
	if err := m.admitLocked(time.Now()); err != nil {
		return nil, err
	}

	submitted := *tx
	submitted.Provider = m.cfg.Provider
	submitted.ProviderTxID = m.cfg.Provider + "-" + uuid.NewString()
	submitted.Status = contracts.TxSubmitted
	submitted.UpdatedAt = time.Now()

	m.byReference[tx.Reference] = &submitted
	m.submittedAt[tx.Reference] = submitted.UpdatedAt

	m.log.Debug("mmo transaction submitted",
		zap.String("reference", tx.Reference),
		zap.String("provider_tx_id", submitted.ProviderTxID))

	copied := submitted
	return &copied, nil
}

// Status returns the latest known transition for the reference,
// promoting submitted transactions to confirmed once ConfirmAfter has
// elapsed. Responses are served from the cache within CacheTTL.
func (m *InMemoryMMO) Status(ctx context.Context, reference string) (*contracts.MMOTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mmo status: %w", contracts.ErrCancelled)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.CacheTTL > 0 {
		if c, ok := m.cache[reference]; ok && time.Since(c.cachedAt) < m.cfg.CacheTTL {
			copied := c.tx
			return &copied, nil
		}
	}

	tx, ok := m.byReference[reference]
	if !ok {
		return nil, nil
	}

	if tx.Status == contracts.TxSubmitted &&
		time.Since(m.submittedAt[reference]) >= m.cfg.ConfirmAfter {
		if tx.Status.CanTransition(contracts.TxConfirmed) {
			tx.Status = contracts.TxConfirmed
			tx.UpdatedAt = time.Now()
		}
	}

	copied := *tx
	if m.cfg.CacheTTL > 0 {
		m.cache[reference] = cachedStatus{tx: copied, cachedAt: time.Now()}
	}
	return &copied, nil
}

// Balance returns the subject's balance, if known.
func (m *InMemoryMMO) Balance(ctx context.Context, subject string) (*contracts.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mmo balance: %w", contracts.ErrCancelled)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[subject]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

// SupportedCountries lists the countries this provider serves.
func (m *InMemoryMMO) SupportedCountries() []contracts.CountryCode {
	out := make([]contracts.CountryCode, len(m.cfg.Countries))
	copy(out, m.cfg.Countries)
	return out
}

// Limits returns the provider limits.
func (m *InMemoryMMO) Limits() contracts.ProviderLimits {
	return m.cfg.Limits
}

func (m *InMemoryMMO) countrySupported(c contracts.CountryCode) bool {
	if len(m.cfg.Countries) == 0 {
		return true
	}
	for _, sc := range m.cfg.Countries {
		if sc == c {
			return true
		}
	}
	return false
}

// admitLocked enforces the per-minute and per-hour rate limits with
// sliding windows. Exceeding either yields a transient rate-limit error.
func (m *InMemoryMMO) admitLocked(now time.Time) error {
	prune := func(marks []time.Time, window time.Duration) []time.Time {
		cut := 0
		for cut < len(marks) && now.Sub(marks[cut]) >= window {
			cut++
		}
		return marks[cut:]
	}
	m.minuteMarks = prune(m.minuteMarks, time.Minute)
	m.hourMarks = prune(m.hourMarks, time.Hour)

	if m.cfg.Limits.PerMinute > 0 && len(m.minuteMarks) >= m.cfg.Limits.PerMinute {
		return fmt.Errorf("mmo: per-minute limit %d reached: %w", m.cfg.Limits.PerMinute, contracts.ErrRateLimited)
	}
	if m.cfg.Limits.PerHour > 0 && len(m.hourMarks) >= m.cfg.Limits.PerHour {
		return fmt.Errorf("mmo: per-hour limit %d reached: %w", m.cfg.Limits.PerHour, contracts.ErrRateLimited)
	}

	m.minuteMarks = append(m.minuteMarks, now)
	m.hourMarks = append(m.hourMarks, now)
	return nil
}
