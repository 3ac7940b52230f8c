// Package trading implements the Trading Engine: the single pipeline every
// strategy signal flows through before an order reaches an exchange.
//
// Grounded on original_source/services/trading_engine.rs's
// execute_trade_with/execute_trade split (a generic core against
// RiskGuard/ApiClient traits, wrapped by a production constructor that
// resolves real credentials) and the teacher's internal/executor/executor.go
// pipeline shape (risk check -> place -> normalize, no retry loop here since
// spec.md explicitly makes exchange-declared failure a non-retried terminal
// outcome).
package trading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// RiskChecker is the narrow seam the Trading Engine consults before every
// order. Implemented by *internal/risk.Guard in production.
type RiskChecker interface {
	CheckSlippage(ctx context.Context, intent domain.TradeIntent, referencePrice decimal.Decimal) error
	IsTripped(ctx context.Context, userID int64) (bool, error)
}

// CredentialResolver resolves plaintext, call-scoped credentials.
// Implemented by *internal/credential.Store in production.
type CredentialResolver interface {
	Get(ctx context.Context, userID int64, exchange string) (domain.Credentials, error)
}

// ExchangeClient places an order using caller-supplied credentials.
// Implemented by *internal/exchange/blowfin.Client in production.
type ExchangeClient interface {
	PlaceOrderWithCredentials(ctx context.Context, intent domain.TradeIntent, creds domain.Credentials) (domain.OrderResult, error)
}

// ReferencePriceSource supplies the current market price the slippage
// check compares an intent's price against.
type ReferencePriceSource interface {
	ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Engine is the constructed Trading Engine. One Engine serves every
// exchange and every user; exchange selection happens per TradeIntent.
type Engine struct {
	risk    RiskChecker
	creds   CredentialResolver
	prices  ReferencePriceSource
	clients map[string]ExchangeClient
	logger  *slog.Logger
}

// New returns an Engine. clients maps an exchange name (e.g. "blowfin") to
// the ExchangeClient that serves it.
func New(risk RiskChecker, creds CredentialResolver, prices ReferencePriceSource, clients map[string]ExchangeClient, logger *slog.Logger) *Engine {
	return &Engine{
		risk:    risk,
		creds:   creds,
		prices:  prices,
		clients: clients,
		logger:  logger.With(slog.String("component", "trading_engine")),
	}
}

// PlaceOrder runs intent through risk -> credential fetch -> sign -> send
// -> normalize. It never retries: an exchange-declared failure
// (OrderResult.Success == false) is returned alongside a nil error, exactly
// like an exchange-declared success.
func (e *Engine) PlaceOrder(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	log := e.logger.With(
		slog.Int64("user_id", intent.UserID),
		slog.String("exchange", intent.Exchange),
		slog.String("symbol", intent.Symbol),
		slog.String("side", string(intent.Side)),
	)

	if err := intent.Validate(); err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading: invalid intent: %w", err)
	}

	tripped, err := e.risk.IsTripped(ctx, intent.UserID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading: checking trip flag: %w", err)
	}
	if tripped {
		log.WarnContext(ctx, "trading: order blocked, drawdown guard tripped")
		return domain.OrderResult{}, fmt.Errorf("%w: drawdown guard tripped for user %d", domain.ErrRiskViolation, intent.UserID)
	}

	// A market order carries no limit price to slip against — intent.Price
	// is left zero, so comparing it to the reference price would reject
	// every market sell outright. original_source's production wrapper hits
	// the same gap and always calls check_slippage(0.0), a no-op; the
	// slippage guard only has something real to check against a limit
	// order's declared price.
	if intent.Type == domain.OrderTypeLimit {
		referencePrice, err := e.prices.ReferencePrice(ctx, intent.Symbol)
		if err != nil {
			return domain.OrderResult{}, fmt.Errorf("trading: fetching reference price: %w", err)
		}
		if err := e.risk.CheckSlippage(ctx, intent, referencePrice); err != nil {
			log.WarnContext(ctx, "trading: order blocked by slippage check", slog.String("error", err.Error()))
			return domain.OrderResult{}, err
		}
	}

	client, ok := e.clients[intent.Exchange]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("trading: no exchange client configured for %q", intent.Exchange)
	}

	creds, err := e.creds.Get(ctx, intent.UserID, intent.Exchange)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: %v", domain.ErrCredentialMissing, err)
	}
	defer creds.Zero()

	result, err := client.PlaceOrderWithCredentials(ctx, intent, creds)
	if err != nil {
		log.ErrorContext(ctx, "trading: placing order failed", slog.String("error", err.Error()))
		return domain.OrderResult{}, fmt.Errorf("trading: placing order: %w", err)
	}

	if result.Success {
		log.InfoContext(ctx, "trading: order placed", slog.String("order_id", result.OrderID))
	} else {
		log.WarnContext(ctx, "trading: exchange declared failure", slog.String("message", result.Message))
	}
	return result, nil
}
