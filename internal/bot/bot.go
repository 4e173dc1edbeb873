// Package bot runs the live analysis loop: collect market data, ask the AI
// for a decision, gate it through the trend filter and trigger normalizer,
// and feed the surviving signal into the simulated position engine.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"okx-trading-bot/internal/ai"
	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/database"
	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/events"
	"okx-trading-bot/internal/logging"
	"okx-trading-bot/internal/okx"
	"okx-trading-bot/internal/risk"
	"okx-trading-bot/internal/strategy"
)

// Exchange is the market data surface the bot needs. *okx.Client satisfies
// it; tests plug in fakes.
type Exchange interface {
	GetKlines(instID, bar string, limit int) ([]okx.Kline, error)
	GetCurrentPrice(instID string) (float64, error)
	GetBalance() (*okx.Balance, error)
}

// Mode selects what the loop does with accepted entries.
const (
	ModeAuto    = "auto"    // decisions are executed against the simulated book
	ModeObserve = "observe" // decisions are recorded but never executed
)

// Config holds the bot loop parameters.
type Config struct {
	Symbol            string
	Leverage          float64
	FeeRate           float64
	MinOrderSize      float64
	MaxOrderSize      float64
	SizeOverrideUSDT  *float64 // fixed USDT notional per entry, converted at the observed price
	Interval          time.Duration
	InitialEquity     float64
	MinConfidence     engine.Confidence
	TrendFilterOn     bool
	NormalizeTriggers bool
	MockMode          bool
}

// Bot owns the loop goroutine and the in-memory engine state.
type Bot struct {
	cfg      Config
	exchange Exchange
	analyzer *ai.Analyzer
	repo     *database.Repository
	cache    *cache.Service
	bus      *events.EventBus
	logger   *logging.Logger
	tracker  *Tracker

	mu        sync.Mutex
	state     engine.State
	engCfg    engine.Config
	openRowID int64
	mode      string
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	lastDecision *database.DecisionRecord
	lastPrice    float64
	lastCycle    time.Time
}

// New wires a bot. cacheSvc may be nil when Redis is disabled.
func New(cfg Config, exchange Exchange, analyzer *ai.Analyzer, repo *database.Repository,
	cacheSvc *cache.Service, bus *events.EventBus, logger *logging.Logger, tracker *Tracker) *Bot {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MinOrderSize <= 0 {
		cfg.MinOrderSize = engine.DefaultMinOrderSize
	}
	if cfg.MaxOrderSize <= 0 {
		cfg.MaxOrderSize = engine.DefaultMaxOrderSize
	}

	engCfg := engine.Config{
		InitialEquity: cfg.InitialEquity,
		FeeRate:       cfg.FeeRate,
		Leverage:      cfg.Leverage,
		MinOrderSize:  cfg.MinOrderSize,
		MaxOrderSize:  cfg.MaxOrderSize,
	}

	return &Bot{
		cfg:      cfg,
		exchange: exchange,
		analyzer: analyzer,
		repo:     repo,
		cache:    cacheSvc,
		bus:      bus,
		logger:   logger.WithComponent("bot"),
		tracker:  tracker,
		state:    engine.NewState(engCfg),
		engCfg:   engCfg,
		mode:     ModeAuto,
	}
}

// Start launches the loop goroutine. Safe to call once per stop.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.mu.Unlock()

	b.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
		"symbol": b.cfg.Symbol,
	}})
	b.logger.WithField("symbol", b.cfg.Symbol).Info("bot started, cycle every %s", b.cfg.Interval)

	b.wg.Add(1)
	go b.loop(loopCtx)
}

// Stop halts the loop and waits for the current cycle to finish.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
	b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{
		"symbol": b.cfg.Symbol,
	}})
	b.logger.Info("bot stopped")
}

// IsRunning reports whether the loop is active.
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval())
	defer ticker.Stop()

	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runCycle(ctx)
			// Pick up interval changes made through the settings endpoint.
			ticker.Reset(b.interval())
		}
	}
}

func (b *Bot) interval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Interval
}

func (b *Bot) configSnapshot() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// runCycle performs one full collect-decide-execute pass.
func (b *Bot) runCycle(ctx context.Context) {
	started := time.Now()
	symbol := b.Symbol()

	market, filter30m, filter2h := b.collectMarket(symbol)
	account := b.collectAccount()
	position := b.positionSnapshot()
	history := b.collectHistory(ctx, symbol)

	decision := b.analyzer.Decide(symbol, market, account, position, history)
	executed, rejectReason := b.applyDecision(ctx, symbol, decision, market.CurrentPrice, filter30m, filter2h)

	b.persistDecision(ctx, symbol, decision, market, account, executed)
	b.bus.PublishDecision(symbol, decision.TradingDecision.Action, decision.TradingDecision.ConfidenceLevel,
		decision.TradingDecision.Reason, market.CurrentPrice, executed)
	b.bus.PublishPriceUpdate(symbol, market.CurrentPrice)

	if rejectReason != "" {
		b.tracker.Rejected(symbol, decision.TradingDecision.Action, rejectReason, market.CurrentPrice)
	}
	b.tracker.Cycle(symbol, decision.TradingDecision.Action, decision.TradingDecision.ConfidenceLevel,
		market.CurrentPrice, executed, time.Since(started))

	b.mu.Lock()
	b.lastPrice = market.CurrentPrice
	b.lastCycle = time.Now()
	b.mu.Unlock()
}

// collectMarket gathers the multi-timeframe snapshot for the prompt plus the
// longer 30m/2h windows the trend filter needs. API failures fall back to
// synthetic data so the cycle always completes.
func (b *Bot) collectMarket(symbol string) (ai.MarketSnapshot, []okx.Kline, []okx.Kline) {
	filter30m := b.fetchKlines(symbol, "30m", 60)
	filter2h := b.fetchKlines(symbol, "2H", 60)

	market := ai.MarketSnapshot{
		Kline5m:  b.fetchKlines(symbol, "5m", 6),
		Kline30m: tail(filter30m, 6),
		Kline2h:  tail(filter2h, 6),
		Kline1d:  b.fetchKlines(symbol, "1D", 6),
	}

	price, err := b.exchange.GetCurrentPrice(symbol)
	if err != nil || price <= 0 {
		if err != nil {
			b.logger.WithError(err).Warn("price fetch failed, using fallback")
		}
		price = okx.FallbackPrice
	}
	market.CurrentPrice = price
	return market, filter30m, filter2h
}

func (b *Bot) fetchKlines(symbol, bar string, limit int) []okx.Kline {
	if b.cfg.MockMode {
		return okx.MockKlines(bar, limit)
	}
	klines, err := b.exchange.GetKlines(symbol, bar, limit)
	if err != nil || len(klines) == 0 {
		if err != nil {
			b.logger.WithError(err).WithField("bar", bar).Warn("kline fetch failed, using mock data")
		}
		return okx.MockKlines(bar, limit)
	}
	return klines
}

func (b *Bot) collectAccount() ai.AccountSnapshot {
	balance, err := b.exchange.GetBalance()
	if err != nil || balance == nil {
		if err != nil {
			b.logger.WithError(err).Warn("balance fetch failed, using mock balance")
		}
		balance = okx.MockBalance()
	}
	return ai.AccountSnapshot{
		AvailableUSDT: balance.AvailableUSDT,
		TotalEquity:   balance.TotalEquity,
	}
}

func (b *Bot) positionSnapshot() ai.PositionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Position == nil {
		return ai.PositionSnapshot{Side: "flat", Leverage: b.cfg.Leverage}
	}
	return ai.PositionSnapshot{
		Side:       string(b.state.Position.Side),
		Size:       b.state.Position.Size,
		EntryPrice: b.state.Position.EntryPrice,
		Leverage:   b.cfg.Leverage,
	}
}

func (b *Bot) collectHistory(ctx context.Context, symbol string) []ai.HistoryEntry {
	records, err := b.repo.GetRecentDecisions(ctx, symbol, 10)
	if err != nil {
		b.logger.WithError(err).Warn("decision history fetch failed")
		return nil
	}
	history := make([]ai.HistoryEntry, 0, len(records))
	for _, rec := range records {
		history = append(history, ai.HistoryEntry{
			Time:       rec.CreatedAt.UTC().Format(time.RFC3339),
			Action:     rec.Action,
			Price:      rec.Price,
			Confidence: rec.Confidence,
			Reason:     rec.Reason,
		})
	}
	return history
}

// applyDecision gates an entry signal and feeds the resulting event into the
// engine. Returns whether a new position was accepted, plus the rejection
// reason when a proposed entry was filtered out.
func (b *Bot) applyDecision(ctx context.Context, symbol string, decision ai.Decision, price float64,
	filter30m, filter2h []okx.Kline) (bool, string) {

	ev := engine.SignalEvent{
		Time:         time.Now().UTC(),
		Price:        price,
		Action:       engine.Action(decision.TradingDecision.Action),
		ProposedSize: decision.PositionManagement.PositionSize,
		Confidence:   engine.Confidence(decision.TradingDecision.ConfidenceLevel),
	}
	if tp := decision.PositionManagement.TakeProfitPrice; tp > 0 {
		ev.TakeProfit = &tp
	}
	if sl := decision.PositionManagement.StopLossPrice; sl > 0 {
		ev.StopLoss = &sl
	}

	rejectReason := ""
	if ev.Action.IsOpen() {
		if reason := b.gateEntry(&ev, filter30m, filter2h); reason != "" {
			ev.Action = engine.ActionHold
			ev.ProposedSize = 0
			rejectReason = reason
		}
	}

	b.mu.Lock()
	if b.mode != ModeAuto {
		b.mu.Unlock()
		if ev.Action.IsOpen() && rejectReason == "" {
			rejectReason = "observe mode"
		}
		return false, rejectReason
	}

	prevPos := b.state.Position
	trades := b.state.Step(ev, b.engCfg)
	newPos := b.state.Position
	openRowID := b.openRowID
	if len(trades) > 0 {
		b.openRowID = 0
	}
	equity := b.state.Acct.Equity
	b.mu.Unlock()

	for _, trade := range trades {
		b.settleTrade(ctx, symbol, trade, openRowID, equity)
	}

	opened := newPos != nil && newPos != prevPos
	if opened {
		b.recordOpen(ctx, symbol, newPos)
	}
	return opened, rejectReason
}

// gateEntry applies the confidence, sizing, trend filter and trigger checks
// to a proposed entry. Returns a non-empty reason when the entry is blocked.
func (b *Bot) gateEntry(ev *engine.SignalEvent, filter30m, filter2h []okx.Kline) string {
	cfg := b.configSnapshot()

	if confidenceRank(ev.Confidence) < confidenceRank(cfg.MinConfidence) {
		return "confidence below threshold"
	}

	if cfg.SizeOverrideUSDT != nil && *cfg.SizeOverrideUSDT > 0 && ev.Price > 0 {
		ev.ProposedSize = *cfg.SizeOverrideUSDT / ev.Price
	}
	if ev.ProposedSize <= 0 {
		return "no position size"
	}

	side := engine.SideLong
	if ev.Action == engine.ActionOpenShort {
		side = engine.SideShort
	}

	snapshot := strategy.ComputeFilters(filter30m, filter2h, ev.Price)
	if cfg.TrendFilterOn {
		if ok, reason := snapshot.AllowEntry(side, ev.Price); !ok {
			return reason
		}
	}

	if cfg.NormalizeTriggers {
		tp, sl := risk.NormalizeTPSL(side, ev.Price, ev.TakeProfit, ev.StopLoss, snapshot.ATR)
		if err := risk.ValidateTriggers(side, ev.Price, tp, sl); err != nil {
			return err.Error()
		}
		ev.TakeProfit = &tp
		ev.StopLoss = &sl
	}
	return ""
}

func (b *Bot) settleTrade(ctx context.Context, symbol string, trade engine.Trade, openRowID int64, equity float64) {
	if openRowID != 0 {
		err := b.repo.CloseSimPosition(ctx, openRowID, trade.ExitPrice, trade.PnL, trade.ReturnPct,
			string(trade.ExitReason), trade.ExitTime)
		if err != nil {
			b.logger.WithError(err).Error("failed to close sim position row")
		}
	}

	b.analyzer.UpdateProfit(trade.PnL)
	b.bus.PublishTradeClosed(symbol, string(trade.Side), string(trade.ExitReason),
		trade.EntryPrice, trade.ExitPrice, trade.Size, trade.PnL, trade.ReturnPct)
	b.tracker.Closed(symbol, trade, equity)
	b.invalidatePositionCache(ctx, symbol)
}

func (b *Bot) recordOpen(ctx context.Context, symbol string, pos *engine.Position) {
	row := &database.SimPosition{
		Symbol:     symbol,
		Side:       string(pos.Side),
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
		TakeProfit: pos.TakeProfit,
		StopLoss:   pos.StopLoss,
		OpenedAt:   pos.EnterTime,
	}
	id, err := b.repo.OpenSimPosition(ctx, row)
	if err != nil {
		b.logger.WithError(err).Error("failed to open sim position row")
	} else {
		b.mu.Lock()
		b.openRowID = id
		b.mu.Unlock()
	}

	b.bus.PublishTradeOpened(symbol, string(pos.Side), pos.EntryPrice, pos.Size)
	b.tracker.Opened(symbol, pos)

	if b.cache != nil {
		if err := b.cache.Set(ctx, cache.PositionKey(symbol), pos, cache.PositionTTL); err != nil && err != cache.ErrUnavailable {
			b.logger.WithError(err).Warn("failed to cache position")
		}
	}
}

func (b *Bot) invalidatePositionCache(ctx context.Context, symbol string) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Delete(ctx, cache.PositionKey(symbol)); err != nil && err != cache.ErrUnavailable {
		b.logger.WithError(err).Warn("failed to invalidate position cache")
	}
}

func (b *Bot) persistDecision(ctx context.Context, symbol string, decision ai.Decision,
	market ai.MarketSnapshot, account ai.AccountSnapshot, executed bool) {

	marketJSON, _ := json.Marshal(market)
	accountJSON, _ := json.Marshal(account)

	rec := &database.DecisionRecord{
		DecisionID:   uuid.New().String(),
		Symbol:       symbol,
		CreatedAt:    time.Now().UTC(),
		Price:        market.CurrentPrice,
		Action:       decision.TradingDecision.Action,
		Confidence:   decision.TradingDecision.ConfidenceLevel,
		Reason:       decision.TradingDecision.Reason,
		PositionSize: decision.PositionManagement.PositionSize,
		MarketJSON:   marketJSON,
		AccountJSON:  accountJSON,
		Executed:     executed,
	}
	if tp := decision.PositionManagement.TakeProfitPrice; tp > 0 {
		rec.TakeProfit = &tp
	}
	if sl := decision.PositionManagement.StopLossPrice; sl > 0 {
		rec.StopLoss = &sl
	}

	id, err := b.repo.SaveDecision(ctx, rec)
	if err != nil {
		b.logger.WithError(err).Error("failed to save decision")
		b.bus.PublishError("bot", "failed to save decision", err)
		return
	}
	rec.ID = id

	b.mu.Lock()
	b.lastDecision = rec
	b.mu.Unlock()

	if b.cache != nil {
		if err := b.cache.Set(ctx, cache.LatestDecisionKey(symbol), rec, cache.DecisionTTL); err != nil && err != cache.ErrUnavailable {
			b.logger.WithError(err).Warn("failed to cache decision")
		}
	}
}

func confidenceRank(c engine.Confidence) int {
	switch c {
	case engine.ConfidenceHigh:
		return 2
	case engine.ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

func tail(klines []okx.Kline, n int) []okx.Kline {
	if len(klines) <= n {
		return klines
	}
	return klines[len(klines)-n:]
}

// Status is the bot snapshot served by the API.
type Status struct {
	Running      bool                     `json:"running"`
	Mode         string                   `json:"mode"`
	Symbol       string                   `json:"symbol"`
	Price        float64                  `json:"price"`
	Equity       float64                  `json:"equity"`
	Position     *engine.Position         `json:"position,omitempty"`
	LastDecision *database.DecisionRecord `json:"last_decision,omitempty"`
	LastCycle    time.Time                `json:"last_cycle"`
}

// Status returns the current loop snapshot.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pos *engine.Position
	if b.state.Position != nil {
		copied := *b.state.Position
		pos = &copied
	}
	return Status{
		Running:      b.running,
		Mode:         b.mode,
		Symbol:       b.cfg.Symbol,
		Price:        b.lastPrice,
		Equity:       b.state.Acct.Equity,
		Position:     pos,
		LastDecision: b.lastDecision,
		LastCycle:    b.lastCycle,
	}
}

// Summary returns the running performance metrics of the simulated book.
func (b *Bot) Summary() engine.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Metrics(b.engCfg)
}

// Symbol returns the currently traded symbol.
func (b *Bot) Symbol() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Symbol
}

// SetSymbol switches the traded symbol and resets the simulated book, since
// an open position cannot carry across instruments.
func (b *Bot) SetSymbol(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if symbol == "" || symbol == b.cfg.Symbol {
		return
	}
	b.cfg.Symbol = symbol
	b.state = engine.NewState(b.engCfg)
	b.openRowID = 0
	b.lastDecision = nil
}

// Mode returns the current execution mode.
func (b *Bot) Mode() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// SetMode switches between auto and observe. Unknown modes are ignored.
func (b *Bot) SetMode(mode string) bool {
	if mode != ModeAuto && mode != ModeObserve {
		return false
	}
	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()
	return true
}

// Settings are the runtime-adjustable loop parameters. Pointer fields are
// optional in update requests: nil means leave unchanged.
type Settings struct {
	Symbol            string   `json:"symbol,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	Leverage          *float64 `json:"leverage,omitempty"`
	IntervalSecs      *int     `json:"interval_secs,omitempty"`
	MinConfidence     string   `json:"min_confidence,omitempty"`
	TrendFilterOn     *bool    `json:"trend_filter_on,omitempty"`
	NormalizeTriggers *bool    `json:"normalize_triggers,omitempty"`
	SizeOverrideUSDT  *float64 `json:"size_override_usdt,omitempty"`
}

// Settings returns the current runtime configuration.
func (b *Bot) Settings() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()

	leverage := b.cfg.Leverage
	intervalSecs := int(b.cfg.Interval / time.Second)
	trendFilter := b.cfg.TrendFilterOn
	normalize := b.cfg.NormalizeTriggers

	s := Settings{
		Symbol:            b.cfg.Symbol,
		Mode:              b.mode,
		Leverage:          &leverage,
		IntervalSecs:      &intervalSecs,
		MinConfidence:     string(b.cfg.MinConfidence),
		TrendFilterOn:     &trendFilter,
		NormalizeTriggers: &normalize,
	}
	if b.cfg.SizeOverrideUSDT != nil {
		override := *b.cfg.SizeOverrideUSDT
		s.SizeOverrideUSDT = &override
	}
	return s
}

// ApplySettings validates and applies a partial settings update. Leverage
// cannot change while a position is open since the book is priced on it.
func (b *Bot) ApplySettings(s Settings) error {
	if s.Mode != "" && s.Mode != ModeAuto && s.Mode != ModeObserve {
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	switch engine.Confidence(s.MinConfidence) {
	case "", engine.ConfidenceLow, engine.ConfidenceMedium, engine.ConfidenceHigh:
	default:
		return fmt.Errorf("unknown confidence level %q", s.MinConfidence)
	}
	if s.Leverage != nil && *s.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive")
	}
	if s.IntervalSecs != nil && *s.IntervalSecs < 10 {
		return fmt.Errorf("interval must be at least 10 seconds")
	}
	if s.SizeOverrideUSDT != nil && *s.SizeOverrideUSDT < 0 {
		return fmt.Errorf("size override must not be negative")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s.Leverage != nil && *s.Leverage != b.cfg.Leverage {
		if b.state.Position != nil {
			return fmt.Errorf("cannot change leverage with an open position")
		}
		b.cfg.Leverage = *s.Leverage
		b.engCfg.Leverage = *s.Leverage
	}
	if s.Mode != "" {
		b.mode = s.Mode
	}
	if s.IntervalSecs != nil {
		b.cfg.Interval = time.Duration(*s.IntervalSecs) * time.Second
	}
	if s.MinConfidence != "" {
		b.cfg.MinConfidence = engine.Confidence(s.MinConfidence)
	}
	if s.TrendFilterOn != nil {
		b.cfg.TrendFilterOn = *s.TrendFilterOn
	}
	if s.NormalizeTriggers != nil {
		b.cfg.NormalizeTriggers = *s.NormalizeTriggers
	}
	if s.SizeOverrideUSDT != nil {
		if *s.SizeOverrideUSDT == 0 {
			b.cfg.SizeOverrideUSDT = nil
		} else {
			override := *s.SizeOverrideUSDT
			b.cfg.SizeOverrideUSDT = &override
		}
	}
	if s.Symbol != "" && s.Symbol != b.cfg.Symbol {
		b.cfg.Symbol = s.Symbol
		b.state = engine.NewState(b.engCfg)
		b.openRowID = 0
		b.lastDecision = nil
	}
	return nil
}
