package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuote marks a quote request with out-of-range inputs.
var ErrInvalidQuote = errors.New("invalid quote")

// Window is an [Start, End) hour-of-day range.
type Window struct {
	StartHour int
	EndHour   int
}

func (window Window) contains(hour int) bool {
	return hour >= window.StartHour && hour < window.EndHour
}

// Config carries the pricing modifiers. All multipliers apply to the running
// subtotal in a fixed order; see Estimate.
type Config struct {
	WeekendMultiplier  decimal.Decimal
	PeakWindow         Window
	PeakMultiplier     decimal.Decimal
	OffPeakWindow      Window
	OffPeakMultiplier  decimal.Decimal
	UrgentWithin       time.Duration
	UrgentMultiplier   decimal.Decimal
	FestivalMultiplier decimal.Decimal
	PlatformFeeRate    decimal.Decimal
	TaxRate            decimal.Decimal
}

// DefaultConfig returns the production modifiers.
func DefaultConfig() Config {
	return Config{
		WeekendMultiplier:  decimal.NewFromFloat(1.5),
		PeakWindow:         Window{StartHour: 17, EndHour: 22},
		PeakMultiplier:     decimal.NewFromFloat(1.2),
		OffPeakWindow:      Window{StartHour: 10, EndHour: 16},
		OffPeakMultiplier:  decimal.NewFromFloat(0.85),
		UrgentWithin:       24 * time.Hour,
		UrgentMultiplier:   decimal.NewFromFloat(1.5),
		FestivalMultiplier: decimal.NewFromFloat(1.3),
		PlatformFeeRate:    decimal.NewFromFloat(0.10),
		TaxRate:            decimal.NewFromFloat(0.18),
	}
}

// Quote describes one pricing request.
type Quote struct {
	BaseCentsPerHour int64
	DurationMinutes  int
	// Scheduled is the service start; its weekday and hour drive the
	// weekend, peak, and off-peak modifiers.
	Scheduled time.Time
	// Now anchors the urgency check. Callers pass the wall clock; tests
	// pin it.
	Now              time.Time
	SamagriRequested bool
	SamagriCents     int64
}

// Breakdown records every surcharge and discount individually so the final
// total is auditable line by line. All amounts are cents; DiscountCents is
// the positive amount subtracted.
type Breakdown struct {
	BaseCents              int64  `json:"base_cents"`
	WeekendSurchargeCents  int64  `json:"weekend_surcharge_cents"`
	PeakSurchargeCents     int64  `json:"peak_surcharge_cents"`
	OffPeakDiscountCents   int64  `json:"off_peak_discount_cents"`
	UrgencySurchargeCents  int64  `json:"urgency_surcharge_cents"`
	FestivalSurchargeCents int64  `json:"festival_surcharge_cents"`
	FestivalName           string `json:"festival_name,omitempty"`
	SamagriCents           int64  `json:"samagri_cents"`
	SubtotalCents          int64  `json:"subtotal_cents"`
	PlatformFeeCents       int64  `json:"platform_fee_cents"`
	TaxCents               int64  `json:"tax_cents"`
	TotalCents             int64  `json:"total_cents"`
}

// Engine computes price breakdowns. It is stateless apart from the festival
// calendar lookup.
type Engine struct {
	calendar FestivalCalendar
	config   Config
}

// NewEngine wires an Engine. A nil calendar is treated as empty.
func NewEngine(calendar FestivalCalendar, config Config) *Engine {
	if calendar == nil {
		calendar = EmptyCalendar()
	}
	return &Engine{calendar: calendar, config: config}
}

// Estimate applies the modifier chain in a fixed order against a running
// subtotal seeded at base x duration: weekend, peak hour, weekday off-peak,
// urgency, festival, samagri, then the platform fee and tax on the final
// subtotal. Identical inputs always produce an identical breakdown.
func (engine *Engine) Estimate(quote Quote) (Breakdown, error) {
	if quote.BaseCentsPerHour <= 0 {
		return Breakdown{}, fmt.Errorf("%w: base price must be positive", ErrInvalidQuote)
	}
	if quote.DurationMinutes <= 0 {
		return Breakdown{}, fmt.Errorf("%w: duration must be positive", ErrInvalidQuote)
	}

	hours := decimal.NewFromInt(int64(quote.DurationMinutes)).Div(decimal.NewFromInt(60))
	subtotal := decimal.NewFromInt(quote.BaseCentsPerHour).Mul(hours)
	breakdown := Breakdown{BaseCents: cents(subtotal)}

	if isWeekend(quote.Scheduled) {
		next := subtotal.Mul(engine.config.WeekendMultiplier)
		breakdown.WeekendSurchargeCents = cents(next.Sub(subtotal))
		subtotal = next
	}
	hour := quote.Scheduled.Hour()
	if engine.config.PeakWindow.contains(hour) {
		next := subtotal.Mul(engine.config.PeakMultiplier)
		breakdown.PeakSurchargeCents = cents(next.Sub(subtotal))
		subtotal = next
	}
	if !isWeekend(quote.Scheduled) && engine.config.OffPeakWindow.contains(hour) {
		next := subtotal.Mul(engine.config.OffPeakMultiplier)
		breakdown.OffPeakDiscountCents = cents(subtotal.Sub(next))
		subtotal = next
	}
	if until := quote.Scheduled.Sub(quote.Now); until > 0 && until < engine.config.UrgentWithin {
		next := subtotal.Mul(engine.config.UrgentMultiplier)
		breakdown.UrgencySurchargeCents = cents(next.Sub(subtotal))
		subtotal = next
	}
	if names := engine.calendar.FestivalsOn(quote.Scheduled); len(names) > 0 {
		next := subtotal.Mul(engine.config.FestivalMultiplier)
		breakdown.FestivalSurchargeCents = cents(next.Sub(subtotal))
		breakdown.FestivalName = strings.Join(names, ", ")
		subtotal = next
	}
	if quote.SamagriRequested && quote.SamagriCents > 0 {
		breakdown.SamagriCents = quote.SamagriCents
		subtotal = subtotal.Add(decimal.NewFromInt(quote.SamagriCents))
	}

	fee := subtotal.Mul(engine.config.PlatformFeeRate)
	tax := subtotal.Mul(engine.config.TaxRate)
	breakdown.SubtotalCents = cents(subtotal)
	breakdown.PlatformFeeCents = cents(fee)
	breakdown.TaxCents = cents(tax)
	breakdown.TotalCents = cents(subtotal.Add(fee).Add(tax))
	return breakdown, nil
}

// EstimateProviderEarnings un-applies tax and the platform fee from a charged
// total. This is algebraic, not a replay of the forward chain, so it is an
// approximation when multiplicative surcharges stacked before the fee.
func (engine *Engine) EstimateProviderEarnings(totalCents int64) int64 {
	one := decimal.NewFromInt(1)
	total := decimal.NewFromInt(totalCents)
	subtotal := total.Div(one.Add(engine.config.PlatformFeeRate).Add(engine.config.TaxRate))
	return cents(subtotal.Mul(one.Sub(engine.config.PlatformFeeRate)))
}

func isWeekend(moment time.Time) bool {
	day := moment.Weekday()
	return day == time.Saturday || day == time.Sunday
}

func cents(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}
