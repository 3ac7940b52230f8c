package domain

import "time"

// StrategyKind selects which signal engine a StrategyRow drives. Adding a
// kind means adding a registry entry in internal/strategy; the scheduler
// itself never special-cases a kind.
type StrategyKind string

const (
	StrategyKindMeanReversion StrategyKind = "mean_reversion"
	StrategyKindTrendFollow   StrategyKind = "trend_follow"
	StrategyKindVCSR          StrategyKind = "vcsr"
)

// StrategyStatus is the persisted on/off switch the scheduler reconciles
// against.
type StrategyStatus string

const (
	StrategyStatusEnabled  StrategyStatus = "enabled"
	StrategyStatusDisabled StrategyStatus = "disabled"
)

// StrategyRow is the persisted desired-state record the scheduler reads
// every tick. Params is raw JSON; each strategy kind parses it into its own
// config struct.
type StrategyRow struct {
	ID       int64
	UserID   int64
	Exchange string
	Symbol   string
	Kind     StrategyKind
	Params   []byte
	Status   StrategyStatus
}

// Enabled reports whether this row's status currently asks the scheduler
// to keep a task running.
func (r StrategyRow) Enabled() bool {
	return r.Status == StrategyStatusEnabled
}

// MeanReversionParams configures the Bollinger-band mean-reversion engine.
// Zero values fall back to the defaults applied in strategy.NewMeanReversion.
type MeanReversionParams struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Period int     `json:"period" yaml:"period"`
	Sigma  float64 `json:"sigma" yaml:"sigma"`
	Qty    float64 `json:"qty" yaml:"qty"`
}

// TrendFollowParams configures the Donchian/SMA trend-following engine.
type TrendFollowParams struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Fast     int     `json:"fast" yaml:"fast"`
	Slow     int     `json:"slow" yaml:"slow"`
	Donchian int     `json:"donchian" yaml:"donchian"`
	Qty      float64 `json:"qty" yaml:"qty"`
}

// VCSRSessionFilter names an allowed trading session window, in UTC hours.
type VCSRSessionFilter string

const (
	VCSRSessionAsia VCSRSessionFilter = "asia"
	VCSRSessionNY   VCSRSessionFilter = "ny"
)

// VCSRParams configures the volume-climax support-reversal engine.
type VCSRParams struct {
	Symbol string `json:"symbol" yaml:"symbol"`

	VolMAPeriod    int     `json:"vol_ma_period" yaml:"vol_ma_period"`
	VolMAMult      float64 `json:"vol_ma_mult" yaml:"vol_ma_mult"`
	VolZScore      float64 `json:"vol_zscore" yaml:"vol_zscore"`
	VolPercentile  float64 `json:"vol_percentile" yaml:"vol_percentile"`

	HVNLookbackDays     int     `json:"hvn_lookback_days" yaml:"hvn_lookback_days"`
	HVNTopValueAreaPct  float64 `json:"hvn_top_value_area_pct" yaml:"hvn_top_value_area_pct"`

	ATRMult       float64 `json:"atr_mult" yaml:"atr_mult"`
	RiskPerTrade  float64 `json:"risk_per_trade" yaml:"risk_per_trade"`
	RRRatio       float64 `json:"rr_ratio" yaml:"rr_ratio"`
	Equity        float64 `json:"equity" yaml:"equity"`

	VWAPSigma        *float64            `json:"vwap_sigma,omitempty" yaml:"vwap_sigma,omitempty"`
	VWAPWindow       int                 `json:"vwap_window" yaml:"vwap_window"`
	OBBidAskRatio    *float64            `json:"ob_bid_ask_ratio,omitempty" yaml:"ob_bid_ask_ratio,omitempty"`
	SessionFilter    []VCSRSessionFilter `json:"session_filter,omitempty" yaml:"session_filter,omitempty"`
}

// TradeSignalKind is the discrete output of a strategy evaluation step.
type TradeSignalKind int

const (
	SignalHold TradeSignalKind = iota
	SignalBuy
	SignalSell
)

// StrategySignal carries an optional sizing/stop/target payload alongside
// the discrete Buy/Sell/Hold outcome, used by strategies (VCSR) that size
// and place stops at signal time.
type StrategySignal struct {
	Kind   TradeSignalKind
	Entry  float64
	Stop   float64
	Target float64
	Size   float64
}

// DemandZone is a price band with historically high traded volume, used by
// VCSR as a support hypothesis.
type DemandZone struct {
	PriceLow  float64
	PriceHigh float64
	Mid       float64
}

// TaskHandle is the Scheduler's record of a live strategy task: the
// cancellation it owns and when the task started.
type TaskHandle struct {
	StrategyID int64
	Cancel     func()
	StartedAt  time.Time
}
