package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/soraai/credits-bot/internal/chain"
	"github.com/soraai/credits-bot/internal/config"
	"github.com/soraai/credits-bot/internal/pricing"
	"github.com/soraai/credits-bot/internal/storage"
)

var txnHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

var (
	ErrInvalidTxnHash = errors.New("invalid transaction hash")
	ErrQueueFull      = errors.New("verification queue full")
)

// Metrics
var (
	confirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Confirmed payment claims",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failures_total",
		Help: "Terminally failed payment claims",
	}, []string{"reason"})

	verifyAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_verify_attempts",
		Help:    "Poll attempts used per confirmed claim",
		Buckets: []float64{1, 2, 3, 5, 8, 10},
	})
)

// ChainReader is the read-only node capability the monitor polls
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error)
}

// Ledger is the durable store the monitor mutates, at most once per task
type Ledger interface {
	RecordPendingTransaction(userID int64, walletAddress, txnHash string) (*storage.PendingTransaction, error)
	ApplyCreditGrant(userID int64, credits int, txnHash string) error
	MarkTransactionFailed(userID int64, txnHash string) error
}

// Notifier delivers the task outcome to the user, best-effort
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string)
}

// SleepFunc is the poll-delay suspension point, injectable for tests
type SleepFunc func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type task struct {
	userID  int64
	wallet  string
	txnHash common.Hash
}

// Monitor runs one bounded verification task per submitted transaction
// hash. Tasks share no in-memory state; the ledger's atomic grant is the
// only serialization point.
type Monitor struct {
	reader   ChainReader
	decoder  *chain.Decoder
	ledger   Ledger
	notifier Notifier
	log      *slog.Logger

	collection   common.Address
	decimals     int32
	maxAttempts  int
	pollInterval time.Duration
	adminContact string

	sleep SleepFunc
	tasks chan task
}

// NewMonitor creates a payment confirmation monitor
func NewMonitor(cfg *config.Config, reader ChainReader, decoder *chain.Decoder, ledger Ledger, notifier Notifier, log *slog.Logger) *Monitor {
	return &Monitor{
		reader:       reader,
		decoder:      decoder,
		ledger:       ledger,
		notifier:     notifier,
		log:          log,
		collection:   common.HexToAddress(cfg.CollectionAddr),
		decimals:     int32(cfg.TokenDecimals),
		maxAttempts:  cfg.MonitorMaxAttempts,
		pollInterval: cfg.MonitorPollInterval,
		adminContact: cfg.BotAdminUsername,
		sleep:        defaultSleep,
		tasks:        make(chan task, cfg.MonitorQueueSize),
	}
}

// SetSleep replaces the poll delay. Tests use this to make retry timing
// deterministic.
func (m *Monitor) SetSleep(sleep SleepFunc) {
	m.sleep = sleep
}

// Run consumes the task queue with a fixed pool of workers until the
// context is cancelled.
func (m *Monitor) Run(ctx context.Context, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-m.tasks:
					m.verify(ctx, t)
				}
			}
		}()
	}
	wg.Wait()
}

// Submit validates and records a payment claim and enqueues its
// verification task. It returns immediately; the outcome is delivered via
// the notifier.
func (m *Monitor) Submit(ctx context.Context, userID int64, walletAddress, txnHash string) (*storage.PendingTransaction, error) {
	if !txnHashRegex.MatchString(txnHash) {
		return nil, ErrInvalidTxnHash
	}

	hash := common.HexToHash(txnHash)
	pending, err := m.ledger.RecordPendingTransaction(userID, walletAddress, hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("record pending transaction: %w", err)
	}

	select {
	case m.tasks <- task{userID: userID, wallet: walletAddress, txnHash: hash}:
	default:
		// No task will ever process the claim, so it must not stay Pending;
		// the user is told to resubmit.
		if err := m.ledger.MarkTransactionFailed(userID, hash.Hex()); err != nil {
			m.log.Error("mark rejected claim failed",
				"error", err,
				"user_id", userID,
				"txn_hash", hash.Hex(),
			)
		}
		return nil, ErrQueueFull
	}

	m.log.Info("verification task submitted",
		"user_id", userID,
		"txn_hash", hash.Hex(),
	)

	return pending, nil
}

func (m *Monitor) verify(ctx context.Context, t task) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		done := m.attempt(ctx, t, attempt)
		if done {
			return
		}

		m.sleep(ctx, m.pollInterval)
		if ctx.Err() != nil {
			// Shutdown mid-task: the claim stays Pending for operator
			// follow-up, no credit was granted.
			m.log.Warn("verification interrupted",
				"user_id", t.userID,
				"txn_hash", t.txnHash.Hex(),
				"attempt", attempt,
			)
			return
		}
	}

	m.fail(ctx, t, "exhausted",
		fmt.Sprintf("An error occurred while verifying your transaction. Please contact support %s.", m.adminContact))
}

// attempt runs one poll cycle. It reports true when the task reached a
// terminal outcome, false when it should sleep and retry.
func (m *Monitor) attempt(ctx context.Context, t task, attempt int) bool {
	receipt, err := m.reader.TransactionReceipt(ctx, t.txnHash)
	if errors.Is(err, chain.ErrReceiptNotFound) {
		m.log.Debug("receipt not yet available",
			"txn_hash", t.txnHash.Hex(),
			"attempt", attempt,
		)
		return false
	}
	if err != nil {
		m.log.Warn("fetch receipt",
			"error", err,
			"attempt", attempt,
			"user_id", t.userID,
		)
		return false
	}

	// A different sender can never match on a later attempt, so a mismatch
	// is fatal immediately.
	if !strings.EqualFold(receipt.Sender.Hex(), t.wallet) {
		m.fail(ctx, t, "address_mismatch",
			"The transaction did not come from the expected address. Please check your inputs and try again.")
		return true
	}

	credits := m.qualifyingGrant(receipt)
	if credits == 0 {
		// Either event indexing lags the receipt or no transfer pays the
		// collection wallet yet; both retry under the same budget.
		m.log.Debug("no qualifying transfer",
			"txn_hash", t.txnHash.Hex(),
			"attempt", attempt,
		)
		return false
	}

	err = m.ledger.ApplyCreditGrant(t.userID, credits, t.txnHash.Hex())
	switch {
	case errors.Is(err, storage.ErrHashAlreadyConfirmed):
		// Another claim on the same transfer won the grant.
		m.fail(ctx, t, "duplicate_hash",
			fmt.Sprintf("This transaction has already been used for a credit purchase. Please contact support %s if you believe this is an error.", m.adminContact))
		return true
	case errors.Is(err, storage.ErrNoPendingTransaction):
		m.fail(ctx, t, "no_pending_claim",
			fmt.Sprintf("An error occurred while verifying your transaction. Please contact support %s.", m.adminContact))
		return true
	case err != nil:
		// Storage may recover; retry under the attempt budget.
		m.log.Warn("apply credit grant",
			"error", err,
			"attempt", attempt,
			"user_id", t.userID,
		)
		return false
	}

	confirmationsTotal.Inc()
	verifyAttempts.Observe(float64(attempt))

	m.log.Info("payment confirmed",
		"user_id", t.userID,
		"txn_hash", t.txnHash.Hex(),
		"credits", credits,
		"attempt", attempt,
	)

	m.notifier.Notify(ctx, t.userID,
		fmt.Sprintf("Your transaction has been confirmed. %d credit(s) have been added to your account.", credits))
	return true
}

// qualifyingGrant prices the first Transfer event paying the collection
// wallet. Emission order matters: the monitor honors the first qualifying
// event and ignores the rest.
func (m *Monitor) qualifyingGrant(receipt *chain.Receipt) int {
	for _, ev := range m.decoder.TransferEvents(receipt) {
		if ev.To != m.collection {
			continue
		}
		amount := chain.HumanAmount(ev.Value, m.decimals)
		if credits := pricing.Credits(amount); credits > 0 {
			return credits
		}
	}
	return 0
}

func (m *Monitor) fail(ctx context.Context, t task, reason, text string) {
	if err := m.ledger.MarkTransactionFailed(t.userID, t.txnHash.Hex()); err != nil {
		m.log.Error("mark transaction failed",
			"error", err,
			"user_id", t.userID,
			"txn_hash", t.txnHash.Hex(),
		)
	}

	failuresTotal.WithLabelValues(reason).Inc()

	m.log.Info("verification failed",
		"reason", reason,
		"user_id", t.userID,
		"txn_hash", t.txnHash.Hex(),
	)

	m.notifier.Notify(ctx, t.userID, text)
}
