package swap

import (
	"context"
	"fmt"
	"strings"

	"escrow-settlement-engine/config"
	"escrow-settlement-engine/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Venue is a rate-table swap executor. It converts at a fixed configured
// rate per asset pair, moving balances inside the caller's ledger
// transaction. The settlement engine treats it as untrusted and verifies
// the resulting balances itself.
type Venue struct {
	holdings ports.HoldingRepository
	rates    map[string]decimal.Decimal
	log      zerolog.Logger
}

// NewVenue builds a Venue from the configured rate table. Rates are keyed
// "INPUT/OUTPUT" and parsed as decimals, e.g. "SOL/USDC" -> "0.001". Keys
// are uppercased on load: viper lowercases map keys read from config files,
// while asset codes on the wire are uppercase.
func NewVenue(cfg config.SwapConfig, holdings ports.HoldingRepository, log zerolog.Logger) (*Venue, error) {
	rates := make(map[string]decimal.Decimal, len(cfg.Rates))
	for pair, raw := range cfg.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing swap rate %q for pair %s: %w", raw, pair, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("negative swap rate for pair %s", pair)
		}
		rates[strings.ToUpper(pair)] = rate
	}
	return &Venue{
		holdings: holdings,
		rates:    rates,
		log:      log.With().Str("component", "swap_venue").Logger(),
	}, nil
}

// Execute converts req.InputAmount of the source vault's asset into the
// output asset at the configured rate, debiting the vault and crediting the
// destination. The output amount is truncated toward zero; dust below one
// base unit is lost to rounding, as it would be on a real venue.
func (v *Venue) Execute(ctx context.Context, tx pgx.Tx, req ports.SwapRequest) (int64, error) {
	if req.InputAmount <= 0 {
		return 0, fmt.Errorf("swap input amount must be positive, got %d", req.InputAmount)
	}

	pair := strings.ToUpper(req.InputAsset + "/" + req.OutputAsset)
	rate, ok := v.rates[pair]
	if !ok {
		return 0, fmt.Errorf("no route for pair %s", pair)
	}

	output := decimal.NewFromInt(req.InputAmount).Mul(rate).Truncate(0).IntPart()

	if err := v.holdings.Debit(ctx, tx, req.SourceVault, req.InputAsset, req.InputAmount); err != nil {
		return 0, fmt.Errorf("debiting swap input: %w", err)
	}
	if output > 0 {
		if err := v.holdings.Credit(ctx, tx, req.Destination, req.OutputAsset, output); err != nil {
			return 0, fmt.Errorf("crediting swap output: %w", err)
		}
	}

	v.log.Debug().
		Str("pair", pair).
		Int64("input", req.InputAmount).
		Int64("output", output).
		Msg("Swap executed")

	return output, nil
}
