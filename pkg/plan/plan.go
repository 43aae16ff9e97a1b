package plan

// Tier is a named subscription plan level. Tiers are ordered: comparisons
// between them drive upgrade/downgrade decisions.
type Tier string

const (
	TierStarter  Tier = "starter"
	TierHomeCare Tier = "homecare"
	TierPriority Tier = "priority"
)

// tierRank defines the ordering used for upgrade/downgrade comparison.
var tierRank = map[Tier]int{
	TierStarter:  1,
	TierHomeCare: 2,
	TierPriority: 3,
}

// Valid reports whether the tier is a known catalog tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// IsUpgrade reports whether moving from one tier to another increases the
// plan level. Same-tier and unknown-tier comparisons are never upgrades.
func IsUpgrade(from, to Tier) bool {
	fromRank, ok := tierRank[from]
	if !ok {
		return false
	}
	toRank, ok := tierRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// BillingPeriod represents the billing frequency for a subscription.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Valid reports whether the billing period is supported.
func (p BillingPeriod) Valid() bool {
	return p == BillingPeriodMonthly || p == BillingPeriodYearly
}

// Money represents a monetary amount in the smallest currency unit.
// For example, $21.99 USD is Amount: 2199, Currency: "USD".
type Money struct {
	Amount   int64  // Amount in smallest currency unit (cents for USD)
	Currency string // ISO 4217 currency code
}

// Perk represents a tier-gated benefit with a per-cycle quota.
type Perk string

const (
	PerkPriorityBooking  Perk = "priority_booking"
	PerkDiscount         Perk = "discount"
	PerkFreeService      Perk = "free_service"
	PerkEmergencyService Perk = "emergency_service"
)

// perkLabels are the human-readable names used in user-facing rejection
// messages (e.g. which perk blocks a downgrade).
var perkLabels = map[Perk]string{
	PerkPriorityBooking:  "priority booking",
	PerkDiscount:         "member discount",
	PerkFreeService:      "free seasonal service",
	PerkEmergencyService: "emergency service",
}

// Label returns the human-readable perk name.
func (p Perk) Label() string {
	if label, ok := perkLabels[p]; ok {
		return label
	}
	return string(p)
}

// Plan describes one subscription tier: its prices per billing period, the
// included visit allowance, and the perks it grants with their per-cycle
// quotas.
type Plan struct {
	Tier           Tier
	Name           string
	Description    string
	Prices         map[BillingPeriod]Money
	PriceIDs       map[BillingPeriod]string // payment gateway price references
	VisitsPerMonth int
	PerkQuotas     map[Perk]int64 // per-cycle quota; counts for countable perks, cents for discount
}

// PriceID returns the gateway price reference for the given billing period.
// Empty when the catalog is not wired to a gateway (tests, local dev).
func (p Plan) PriceID(period BillingPeriod) string {
	return p.PriceIDs[period]
}

// HasPerk reports whether the plan grants the given perk at all.
func (p Plan) HasPerk(perk Perk) bool {
	quota, ok := p.PerkQuotas[perk]
	return ok && quota != 0
}

// Price returns the plan's price for the given billing period.
func (p Plan) Price(period BillingPeriod) (Money, error) {
	price, ok := p.Prices[period]
	if !ok {
		return Money{}, ErrInvalidBillingPeriod
	}
	return price, nil
}
