package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/logger"
	"github.com/bakery/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Settings tunes retries, idempotency and caching of the purchasing services
type Settings struct {
	NumberingMaxRetries int
	ConflictMaxRetries  int
	ConflictBackoff     time.Duration
	IdempotencyTTL      time.Duration
	CacheTTL            time.Duration
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		NumberingMaxRetries: 5,
		ConflictMaxRetries:  3,
		ConflictBackoff:     20 * time.Millisecond,
		IdempotencyTTL:      24 * time.Hour,
		CacheTTL:            5 * time.Minute,
	}
}

// Command is one mutation of an existing order
type Command struct {
	// Action labels spans, logs and metrics
	Action  string
	OrderID uuid.UUID
	// Key is the idempotency key of the history entry the mutation stages
	Key   string
	Actor *uuid.UUID
	// Mutate changes the freshly read order. It runs again on every retry.
	Mutate func(order *purchasing.PurchaseOrder) error
}

// CommandResult is the order after the command
type CommandResult struct {
	Order *purchasing.PurchaseOrder
	// Replayed is true when the key had already been applied and nothing changed
	Replayed bool
}

// CommandExecutor runs order mutations as one unit of work: re-read the
// order, mutate it, save it under the optimistic lock and apply its stock
// movements, all in one transaction. Stale writes are retried with a linear
// backoff and already applied keys are answered with the current state.
type CommandExecutor struct {
	orders   purchasing.PurchaseOrderRepository
	history  purchasing.HistoryRepository
	txScope  TransactionScope
	settings Settings
	logger   *zap.Logger

	idempotency shared.IdempotencyStore
	cache       purchasing.OrderCache
	metrics     *telemetry.PurchasingMetrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewCommandExecutor creates a new CommandExecutor
func NewCommandExecutor(
	orders purchasing.PurchaseOrderRepository,
	history purchasing.HistoryRepository,
	txScope TransactionScope,
	settings Settings,
	logger *zap.Logger,
) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandExecutor{
		orders:   orders,
		history:  history,
		txScope:  txScope,
		settings: settings,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// SetIdempotencyStore sets the fast-path store consulted before the database
func (e *CommandExecutor) SetIdempotencyStore(store shared.IdempotencyStore) {
	e.idempotency = store
}

// SetOrderCache sets the cache invalidated after every commit
func (e *CommandExecutor) SetOrderCache(cache purchasing.OrderCache) {
	e.cache = cache
}

// SetMetrics sets the purchasing metrics collector
func (e *CommandExecutor) SetMetrics(m *telemetry.PurchasingMetrics) {
	e.metrics = m
}

// Orders returns the non-transactional order repository
func (e *CommandExecutor) Orders() purchasing.PurchaseOrderRepository {
	return e.orders
}

// Execute runs cmd and returns the order as committed, or as currently
// stored when the key was already applied.
func (e *CommandExecutor) Execute(ctx context.Context, cmd Command) (*CommandResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "purchase_order", cmd.Action,
		attribute.String("po.id", cmd.OrderID.String()),
		attribute.String("po.idempotency_key", cmd.Key),
	)
	defer span.End()

	start := time.Now()
	result, err := e.execute(ctx, cmd)
	if e.metrics != nil {
		e.metrics.RecordCommand(ctx, cmd.Action, time.Since(start), err)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if result.Replayed {
		telemetry.AddEvent(span, "idempotent_replay")
	}
	return result, nil
}

func (e *CommandExecutor) execute(ctx context.Context, cmd Command) (*CommandResult, error) {
	log := logger.Enrich(ctx, e.logger).With(
		zap.String("order_id", cmd.OrderID.String()),
		zap.String("action", cmd.Action),
	)

	if cmd.Key == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Idempotency key is required")
	}

	applied, err := e.alreadyApplied(ctx, cmd.Key, log)
	if err != nil {
		return nil, err
	}
	if applied {
		return e.replay(ctx, cmd, log)
	}

	var (
		saved  *purchasing.PurchaseOrder
		staged []purchasing.HistoryEntry
	)
	for attempt := 1; ; attempt++ {
		saved, staged, err = e.apply(ctx, cmd)
		if err == nil {
			break
		}
		if errors.Is(err, purchasing.ErrAlreadyApplied) {
			return e.replay(ctx, cmd, log)
		}
		if !shared.IsRetryable(err) {
			return nil, err
		}
		if attempt > e.settings.ConflictMaxRetries {
			if e.metrics != nil {
				e.metrics.RecordConflict(ctx, cmd.Action, true)
			}
			log.Warn("Purchase order conflict retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.RecordConflict(ctx, cmd.Action, false)
		}
		log.Warn("Purchase order changed concurrently, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if err := e.sleep(ctx, e.settings.ConflictBackoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}

	e.afterCommit(ctx, cmd, saved, staged, log)
	return &CommandResult{Order: saved}, nil
}

// apply runs one attempt inside a transaction and returns the saved order
// with the history it staged
func (e *CommandExecutor) apply(ctx context.Context, cmd Command) (*purchasing.PurchaseOrder, []purchasing.HistoryEntry, error) {
	var (
		saved  *purchasing.PurchaseOrder
		staged []purchasing.HistoryEntry
	)
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.Orders().FindByID(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		order.SetActor(cmd.Actor)
		if err := cmd.Mutate(order); err != nil {
			return err
		}

		// SaveWithLock clears the staged lists
		history := order.PendingHistory()
		movements := order.PendingMovements()
		if err := repos.Orders().SaveWithLock(ctx, order); err != nil {
			return err
		}
		for _, mv := range movements {
			if err := applyMovement(ctx, repos.Inventory(), mv); err != nil {
				return err
			}
		}

		saved, staged = order, history
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, staged, nil
}

func applyMovement(ctx context.Context, inventory purchasing.InventoryService, mv purchasing.StockMovement) error {
	if mv.Quantity.IsNegative() {
		return inventory.DecrementStock(ctx, mv)
	}
	return inventory.IncrementStock(ctx, mv)
}

// alreadyApplied checks the fast path first, then the history table which
// stays authoritative
func (e *CommandExecutor) alreadyApplied(ctx context.Context, key string, log *zap.Logger) (bool, error) {
	if e.idempotency != nil {
		processed, err := e.idempotency.IsProcessed(ctx, key)
		if err != nil {
			log.Warn("Idempotency store unavailable, checking history", zap.Error(err))
		} else if processed {
			return true, nil
		}
	}
	return e.history.ExistsByKey(ctx, key)
}

func (e *CommandExecutor) replay(ctx context.Context, cmd Command, log *zap.Logger) (*CommandResult, error) {
	if e.metrics != nil {
		e.metrics.RecordReplay(ctx, cmd.Action)
	}
	log.Info("Idempotency key already applied, returning current state", zap.String("idempotency_key", cmd.Key))

	order, err := e.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Order: order, Replayed: true}, nil
}

func (e *CommandExecutor) afterCommit(ctx context.Context, cmd Command, order *purchasing.PurchaseOrder, staged []purchasing.HistoryEntry, log *zap.Logger) {
	if e.idempotency != nil {
		if _, err := e.idempotency.MarkProcessed(ctx, cmd.Key, e.settings.IdempotencyTTL); err != nil {
			log.Warn("Failed to mark idempotency key", zap.String("idempotency_key", cmd.Key), zap.Error(err))
		}
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, cmd.OrderID, order.Version); err != nil {
			log.Warn("Failed to invalidate cached order", zap.Error(err))
		}
	}
	if e.metrics != nil {
		for _, entry := range staged {
			if entry.NewStatus != nil {
				e.metrics.RecordTransition(ctx, entry.PreviousStatus.String(), entry.NewStatus.String())
			}
		}
	}

	log.Info("Purchase order updated",
		zap.String("po_number", order.PONumber),
		zap.String("status", order.Status.String()),
		zap.Int("version", order.Version),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
