package application

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/pkg/metrics"
)

// txMarker 标记 fakeRepo.WithTx 传出的事务 ctx
type txMarker struct{}

type fakeRepo struct {
	mu        sync.Mutex
	saved     []*domain.PricingResult
	saveErr   error
	lastLimit int
	savedInTx int
	rollbacks int
}

func (r *fakeRepo) Save(ctx context.Context, result *domain.PricingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if ctx.Value(txMarker{}) != nil {
		r.savedInTx++
	}
	r.saved = append(r.saved, result)
	return nil
}

// WithTx fn 失败时丢弃事务内保存的结果
func (r *fakeRepo) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	r.mu.Lock()
	before := len(r.saved)
	r.mu.Unlock()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		r.mu.Lock()
		r.saved = r.saved[:before]
		r.rollbacks++
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepo) GetLatest(_ context.Context, symbol string) (*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.saved) - 1; i >= 0; i-- {
		if r.saved[i].Symbol == symbol {
			return r.saved[i], nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetHistory(_ context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []*domain.PricingResult
	for i := len(r.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if r.saved[i].Symbol == symbol {
			out = append(out, r.saved[i])
		}
	}
	return out, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.PricingResult
	gets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.PricingResult)}
}

func (c *fakeCache) Get(_ context.Context, key string) (*domain.PricingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return c.entries[key], nil
}

func (c *fakeCache) Set(_ context.Context, key string, result *domain.PricingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	priced []domain.OptionPricedEvent
	failed []domain.PricingErrorEvent
}

func (p *fakePublisher) PublishOptionPriced(_ context.Context, event domain.OptionPricedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priced = append(p.priced, event)
	return nil
}

func (p *fakePublisher) PublishPricingError(_ context.Context, event domain.PricingErrorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return nil
}

// fakeTxPublisher 模拟 outbox：定价完成事件只能在事务内写入
type fakeTxPublisher struct {
	fakePublisher
	inTx  []domain.OptionPricedEvent
	txErr error
}

func (p *fakeTxPublisher) PublishOptionPricedInTx(ctx context.Context, event domain.OptionPricedEvent) error {
	if ctx.Value(txMarker{}) == nil {
		return errors.New("no transaction in context")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txErr != nil {
		return p.txErr
	}
	p.inTx = append(p.inTx, event)
	return nil
}

func smallCommand() PriceAmericanPutCommand {
	p := domain.DefaultSimulationParameters()
	p.Paths = 200
	p.Steps = 6
	p.Dt = 1.0 / 6
	p.Repetitions = 4
	return PriceAmericanPutCommand{Symbol: "TEST-PUT", Params: p.WithSeed(7)}
}

func TestPriceAmericanPut_SavesAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub))

	res, err := svc.PriceAmericanPut(context.Background(), smallCommand())
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if res.RunID == "" || res.Symbol != "TEST-PUT" || res.Seed != 7 || res.Paths != 200 || res.Degree != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.OptionPrice.Sign() <= 0 {
		t.Fatalf("price should be positive: %s", res.OptionPrice)
	}
	if res.PricingModel != domain.PricingModelLSMC || res.OptionType != domain.OptionTypePut {
		t.Fatalf("model/type mismatch: %s %s", res.PricingModel, res.OptionType)
	}
	if len(repo.saved) != 1 || repo.saved[0] != res {
		t.Fatalf("result not saved: %d", len(repo.saved))
	}
	if len(pub.priced) != 1 || pub.priced[0].RunID != res.RunID {
		t.Fatalf("priced event mismatch: %+v", pub.priced)
	}
	if pub.priced[0].OptionPrice != res.OptionPrice.InexactFloat64() {
		t.Fatalf("event price %v != result price %s", pub.priced[0].OptionPrice, res.OptionPrice)
	}
	if len(pub.failed) != 0 {
		t.Fatalf("unexpected error events: %+v", pub.failed)
	}
}

func TestPriceAmericanPut_Deterministic(t *testing.T) {
	svc := NewPricingCommandService()
	a, err := svc.PriceAmericanPut(context.Background(), smallCommand())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := svc.PriceAmericanPut(context.Background(), smallCommand())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !a.OptionPrice.Equal(b.OptionPrice) || !a.StdDev.Equal(b.StdDev) {
		t.Fatalf("seeded runs differ: %s/%s vs %s/%s", a.OptionPrice, a.StdDev, b.OptionPrice, b.StdDev)
	}
	if a.RunID == b.RunID {
		t.Fatalf("run ids should be unique")
	}
}

func TestPriceAmericanPut_CacheHit(t *testing.T) {
	repo := &fakeRepo{}
	cache := newFakeCache()
	m := metrics.New("test")
	svc := NewPricingCommandService(WithRepository(repo), WithResultCache(cache), WithMetrics(m))

	cmd := smallCommand()
	cmd.UseCache = true
	first, err := svc.PriceAmericanPut(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := svc.PriceAmericanPut(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.RunID != first.RunID {
		t.Fatalf("second run should come from cache")
	}
	if len(repo.saved) != 1 {
		t.Fatalf("cached run should not be saved again: %d", len(repo.saved))
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.StatusCached)); got != 1 {
		t.Fatalf("cached runs: got=%v", got)
	}
}

func TestPriceAmericanPut_UnseededSkipsCache(t *testing.T) {
	cache := newFakeCache()
	svc := NewPricingCommandService(WithResultCache(cache))
	cmd := smallCommand()
	cmd.Params.Seed = nil
	cmd.UseCache = true
	if _, err := svc.PriceAmericanPut(context.Background(), cmd); err != nil {
		t.Fatalf("price: %v", err)
	}
	if cache.gets != 0 || len(cache.entries) != 0 {
		t.Fatalf("unseeded run must not touch the cache")
	}
}

func TestPriceAmericanPut_InvalidConfiguration(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	m := metrics.New("test")
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub), WithMetrics(m))

	cmd := smallCommand()
	cmd.Params.Paths = 0
	_, err := svc.PriceAmericanPut(context.Background(), cmd)
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
	if len(repo.saved) != 0 || len(pub.priced) != 0 {
		t.Fatalf("nothing should be saved or priced")
	}
	if len(pub.failed) != 1 || pub.failed[0].ErrorCode != ErrorCodeInvalidConfiguration {
		t.Fatalf("error event mismatch: %+v", pub.failed)
	}
	if got := testutil.ToFloat64(m.RepetitionsTotal); got != 0 {
		t.Fatalf("no repetition should run: %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.StatusFailed)); got != 1 {
		t.Fatalf("failed runs: got=%v", got)
	}
}

func TestPriceAmericanPut_Canceled(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewPricingCommandService(WithEventPublisher(pub))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PriceAmericanPut(ctx, smallCommand())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(pub.failed) != 1 || pub.failed[0].ErrorCode != ErrorCodeCanceled {
		t.Fatalf("error event mismatch: %+v", pub.failed)
	}
}

func TestPriceAmericanPut_SaveFailure(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("db down")}
	pub := &fakePublisher{}
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub))

	if _, err := svc.PriceAmericanPut(context.Background(), smallCommand()); err == nil {
		t.Fatalf("expected save error")
	}
	if len(pub.priced) != 0 || len(pub.failed) != 1 || pub.failed[0].ErrorCode != ErrorCodeInternal {
		t.Fatalf("events mismatch: priced=%d failed=%+v", len(pub.priced), pub.failed)
	}
}

func TestPriceAmericanPut_Metrics(t *testing.T) {
	m := metrics.New("test")
	svc := NewPricingCommandService(WithMetrics(m))
	cmd := smallCommand()
	res, err := svc.PriceAmericanPut(context.Background(), cmd)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got := testutil.ToFloat64(m.RepetitionsTotal); got != float64(cmd.Params.Repetitions) {
		t.Fatalf("repetitions: got=%v want=%d", got, cmd.Params.Repetitions)
	}
	if got := testutil.ToFloat64(m.LastPrice); got != res.OptionPrice.InexactFloat64() {
		t.Fatalf("last price gauge: got=%v want=%s", got, res.OptionPrice)
	}
}

func TestPriceAmericanPut_DefaultSymbol(t *testing.T) {
	cmd := smallCommand()
	cmd.Symbol = ""
	res, err := NewPricingCommandService().PriceAmericanPut(context.Background(), cmd)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if res.Symbol != DefaultSymbol {
		t.Fatalf("symbol: got=%q", res.Symbol)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&domain.ConfigurationError{Field: "k"}, ErrorCodeInvalidConfiguration},
		{domain.ErrNumericalOverflow, ErrorCodeNumericalOverflow},
		{context.DeadlineExceeded, ErrorCodeCanceled},
		{errors.New("boom"), ErrorCodeInternal},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v): got=%s want=%s", tc.err, got, tc.want)
		}
	}
}

func TestPriceAmericanPut_TransactionalPublish(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakeTxPublisher{}
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub))

	res, err := svc.PriceAmericanPut(context.Background(), smallCommand())
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if repo.savedInTx != 1 || len(repo.saved) != 1 {
		t.Fatalf("result should be saved inside the transaction: inTx=%d saved=%d", repo.savedInTx, len(repo.saved))
	}
	if len(pub.inTx) != 1 || pub.inTx[0].RunID != res.RunID {
		t.Fatalf("event should be written inside the transaction: %+v", pub.inTx)
	}
	if len(pub.priced) != 0 {
		t.Fatalf("event published twice: %+v", pub.priced)
	}
}

func TestPriceAmericanPut_OutboxFailureRollsBack(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakeTxPublisher{txErr: errors.New("outbox insert failed")}
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub))

	res, err := svc.PriceAmericanPut(context.Background(), smallCommand())
	if err == nil || !errors.Is(err, pub.txErr) {
		t.Fatalf("expected outbox error, got res=%+v err=%v", res, err)
	}
	if len(repo.saved) != 0 || repo.rollbacks != 1 {
		t.Fatalf("save should be rolled back: saved=%d rollbacks=%d", len(repo.saved), repo.rollbacks)
	}
	if len(pub.priced) != 0 || len(pub.failed) != 1 || pub.failed[0].ErrorCode != ErrorCodeInternal {
		t.Fatalf("events mismatch: priced=%d failed=%+v", len(pub.priced), pub.failed)
	}
}

func TestPriceAmericanPut_NonTransactionalPublisherAfterCommit(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub))

	if _, err := svc.PriceAmericanPut(context.Background(), smallCommand()); err != nil {
		t.Fatalf("price: %v", err)
	}
	if repo.savedInTx != 1 || len(pub.priced) != 1 {
		t.Fatalf("savedInTx=%d priced=%d", repo.savedInTx, len(pub.priced))
	}
}

func TestPriceAmericanPut_NumericalOverflow(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := NewPricingCommandService(WithRepository(repo), WithEventPublisher(pub))

	// r=-100, dt=1：参数有限且通过校验，但贴现因子 e^100 使回溯现金流溢出
	cmd := smallCommand()
	cmd.Params.R = -100
	cmd.Params.Dt = 1
	cmd.Params.Steps = 12

	res, err := svc.PriceAmericanPut(context.Background(), cmd)
	if !errors.Is(err, domain.ErrNumericalOverflow) {
		t.Fatalf("expected ErrNumericalOverflow, got res=%+v err=%v", res, err)
	}
	if ErrorCode(err) != ErrorCodeNumericalOverflow {
		t.Fatalf("error code: got=%s", ErrorCode(err))
	}
	if len(repo.saved) != 0 || len(pub.priced) != 0 {
		t.Fatalf("overflowed run must not be persisted: saved=%d priced=%d", len(repo.saved), len(pub.priced))
	}
	if len(pub.failed) != 1 || pub.failed[0].ErrorCode != ErrorCodeNumericalOverflow {
		t.Fatalf("error event mismatch: %+v", pub.failed)
	}
}

func TestBuildResult_NonFiniteAggregate(t *testing.T) {
	svc := NewPricingCommandService()
	p := smallCommand().Params
	for _, agg := range []*domain.AggregateResult{
		{Mean: math.Inf(1)},
		{Mean: 0.05, StdDev: math.NaN()},
	} {
		if _, err := svc.buildResult("run", "X", p, agg, 0); !errors.Is(err, domain.ErrNumericalOverflow) {
			t.Fatalf("aggregate %+v: expected ErrNumericalOverflow, got %v", agg, err)
		}
	}
}
