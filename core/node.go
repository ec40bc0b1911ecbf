package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	nhbstate "kalelend/core/state"
	nativecommon "kalelend/native/common"
	"kalelend/native/kalelend"
	"kalelend/observability/metrics"
	"kalelend/storage"
)

var errNilCallback = errors.New("core: callback required")

// Node owns the database and serialises every engine operation. Each
// operation runs against a journal that is committed only when the operation
// succeeds, so a failure leaves no partial writes behind.
type Node struct {
	db        storage.Database
	oracle    kalelend.PriceOracle
	pauses    *nativecommon.PauseSet
	clock     func() time.Time
	kaleAsset string
	xlmAsset  string
	logger    *slog.Logger
	metrics   *metrics.KaleLendMetrics
	tracer    trace.Tracer
	stateMu   sync.Mutex
}

// Option customises a Node.
type Option func(*Node)

// WithClock replaces the wall clock used to stamp operations.
func WithClock(clock func() time.Time) Option {
	return func(n *Node) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithAssets overrides the oracle symbols for KALE and XLM.
func WithAssets(kale, xlm string) Option {
	return func(n *Node) {
		n.kaleAsset = kale
		n.xlmAsset = xlm
	}
}

// WithPauses installs an operator pause set.
func WithPauses(pauses *nativecommon.PauseSet) Option {
	return func(n *Node) {
		if pauses != nil {
			n.pauses = pauses
		}
	}
}

// WithMetrics records operation metrics on m.
func WithMetrics(m *metrics.KaleLendMetrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithTracer emits a span per operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(n *Node) {
		if tracer != nil {
			n.tracer = tracer
		}
	}
}

// NewNode opens the platform over db. The stored schema version is checked,
// and stamped on first use, before the node accepts operations.
func NewNode(db storage.Database, oracle kalelend.PriceOracle, allowMigrate bool, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("core: price oracle required")
	}
	n := &Node{
		db:     db,
		oracle: oracle,
		pauses: nativecommon.NewPauseSet(),
		clock:  time.Now,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("kalelend"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	err := n.WithState(func(manager *nhbstate.Manager) error {
		return manager.EnsureStateVersion(allowMigrate)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Pauses exposes the operator pause switches.
func (n *Node) Pauses() *nativecommon.PauseSet { return n.pauses }

// Oracle returns the configured price source.
func (n *Node) Oracle() kalelend.PriceOracle { return n.oracle }

// WithState runs fn against a journaled state manager and commits its writes
// when fn returns nil.
func (n *Node) WithState(fn func(*nhbstate.Manager) error) error {
	if fn == nil {
		return errNilCallback
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.withJournal(fn)
}

func (n *Node) withJournal(fn func(*nhbstate.Manager) error) error {
	journal := storage.NewJournal(n.db)
	if err := fn(nhbstate.NewManager(journal)); err != nil {
		journal.Discard()
		return err
	}
	return journal.Commit()
}

// View runs fn against the current state and discards anything it writes.
func (n *Node) View(fn func(*nhbstate.Manager) error) error {
	if fn == nil {
		return errNilCallback
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	journal := storage.NewJournal(n.db)
	defer journal.Discard()
	return fn(nhbstate.NewManager(journal))
}

// WithEngine runs one named engine operation. The operation observes a single
// timestamp that never moves backwards across commits.
func (n *Node) WithEngine(ctx context.Context, op string, fn func(*kalelend.Engine) error) error {
	if fn == nil {
		return errNilCallback
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := n.tracer.Start(ctx, "kalelend."+op, trace.WithAttributes(attribute.String("kalelend.op", op)))
	defer span.End()

	started := time.Now()
	err := n.WithState(func(manager *nhbstate.Manager) error {
		ts, err := n.timestamp(manager)
		if err != nil {
			return err
		}
		engine := kalelend.NewEngine(n.oracle)
		engine.SetState(&stateAdapter{manager: manager})
		engine.SetPauses(n.pauses)
		engine.SetAssets(n.kaleAsset, n.xlmAsset)
		engine.SetTimestamp(ts)
		if err := fn(engine); err != nil {
			return err
		}
		if err := manager.SetLastTimestamp(ts); err != nil {
			return err
		}
		n.publishTotals(manager)
		return nil
	})
	n.observe(op, err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	return err
}

// ReadEngine runs fn with an engine whose writes are always discarded.
func (n *Node) ReadEngine(fn func(*kalelend.Engine) error) error {
	if fn == nil {
		return errNilCallback
	}
	return n.View(func(manager *nhbstate.Manager) error {
		ts, err := n.timestamp(manager)
		if err != nil {
			return err
		}
		engine := kalelend.NewEngine(n.oracle)
		engine.SetState(&stateAdapter{manager: manager})
		engine.SetAssets(n.kaleAsset, n.xlmAsset)
		engine.SetTimestamp(ts)
		return fn(engine)
	})
}

// timestamp clamps the wall clock to the last committed operation time.
func (n *Node) timestamp(manager *nhbstate.Manager) (uint64, error) {
	last, err := manager.LastTimestamp()
	if err != nil {
		return 0, err
	}
	now := n.clock().Unix()
	if now < 0 {
		now = 0
	}
	ts := uint64(now)
	if ts < last {
		ts = last
	}
	return ts, nil
}

func (n *Node) publishTotals(manager *nhbstate.Manager) {
	if n.metrics == nil {
		return
	}
	platform, ok, err := manager.KaleLendPlatform()
	if err != nil || !ok {
		return
	}
	n.metrics.SetTotal("staked", platform.TotalStaked)
	n.metrics.SetTotal("borrowed", platform.TotalBorrowed)
	n.metrics.SetTotal("collateral", platform.TotalCollateral)
}

func (n *Node) observe(op string, err error, elapsed time.Duration) {
	result := outcome(err)
	n.metrics.ObserveOperation(op, result, elapsed)
	if kalelend.KindOf(err) == kalelend.KindPriceUnavailable {
		var engineErr *kalelend.Error
		if errors.As(err, &engineErr) {
			n.metrics.ObserveOracleFailure(engineErr.Field)
		}
	}
	switch {
	case err == nil:
		n.logger.Debug("kalelend operation committed", slog.String("op", op), slog.Duration("elapsed", elapsed))
	case kalelend.KindOf(err) == kalelend.KindUnknown && !errors.Is(err, nativecommon.ErrModulePaused):
		n.logger.Error("kalelend operation failed", slog.String("op", op), slog.Any("error", err))
	default:
		n.logger.Info("kalelend operation rejected", slog.String("op", op), slog.String("outcome", result), slog.Any("error", err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	default:
		return kalelend.KindOf(err).String()
	}
}
