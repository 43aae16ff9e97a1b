package plan

// Catalog is a static mapping from tier to plan definition. It is a pure
// lookup table with no mutable state, safe for concurrent use.
type Catalog struct {
	plans map[Tier]Plan
}

// NewCatalog builds a catalog from the given plans.
// Returns ErrInvalidCatalog when a plan is internally inconsistent, so a
// misconfigured catalog fails at startup rather than during a plan change.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	byTier := make(map[Tier]Plan, len(plans))
	for _, p := range plans {
		if !p.Tier.Valid() {
			return nil, ErrInvalidCatalog
		}
		if _, exists := byTier[p.Tier]; exists {
			return nil, ErrInvalidCatalog
		}
		if len(p.Prices) == 0 || p.VisitsPerMonth < 0 {
			return nil, ErrInvalidCatalog
		}
		for period := range p.Prices {
			if !period.Valid() {
				return nil, ErrInvalidCatalog
			}
		}
		byTier[p.Tier] = p
	}
	return &Catalog{plans: byTier}, nil
}

// MustNewCatalog builds a catalog and panics on configuration errors,
// following the fail-fast initialization pattern.
func MustNewCatalog(plans ...Plan) *Catalog {
	c, err := NewCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the plan for a tier.
func (c *Catalog) Get(tier Tier) (Plan, error) {
	p, ok := c.plans[tier]
	if !ok {
		return Plan{}, ErrTierNotFound
	}
	return p, nil
}

// Price returns the price of a tier for the given billing period.
func (c *Catalog) Price(tier Tier, period BillingPeriod) (Money, error) {
	p, err := c.Get(tier)
	if err != nil {
		return Money{}, err
	}
	return p.Price(period)
}

// ByPriceID resolves a gateway price reference back to the plan and billing
// period it sells. Used by the webhook reconciler to interpret events that
// carry only the gateway's price id.
func (c *Catalog) ByPriceID(priceID string) (Plan, BillingPeriod, error) {
	if priceID == "" {
		return Plan{}, "", ErrPriceNotFound
	}
	for _, p := range c.plans {
		for period, id := range p.PriceIDs {
			if id == priceID {
				return p, period, nil
			}
		}
	}
	return Plan{}, "", ErrPriceNotFound
}

// ExclusivePerks returns the perks granted by the from-tier that the to-tier
// does not grant. Used to decide whether consumed perks block a downgrade.
func (c *Catalog) ExclusivePerks(from, to Tier) ([]Perk, error) {
	fromPlan, err := c.Get(from)
	if err != nil {
		return nil, err
	}
	toPlan, err := c.Get(to)
	if err != nil {
		return nil, err
	}

	var exclusive []Perk
	for _, perk := range allPerks {
		if fromPlan.HasPerk(perk) && !toPlan.HasPerk(perk) {
			exclusive = append(exclusive, perk)
		}
	}
	return exclusive, nil
}

// allPerks lists perks in a stable order for deterministic messages.
var allPerks = []Perk{
	PerkPriorityBooking,
	PerkDiscount,
	PerkFreeService,
	PerkEmergencyService,
}

// Default returns the standard DwellCare home-services catalog.
func Default() *Catalog {
	return MustNewCatalog(
		Plan{
			Tier:        TierStarter,
			Name:        "Starter",
			Description: "Essential home maintenance coverage",
			Prices: map[BillingPeriod]Money{
				BillingPeriodMonthly: {Amount: 2199, Currency: "USD"},
				BillingPeriodYearly:  {Amount: 21990, Currency: "USD"},
			},
			VisitsPerMonth: 1,
			PerkQuotas:     map[Perk]int64{},
		},
		Plan{
			Tier:        TierHomeCare,
			Name:        "HomeCare",
			Description: "Scheduled maintenance with member perks",
			Prices: map[BillingPeriod]Money{
				BillingPeriodMonthly: {Amount: 5499, Currency: "USD"},
				BillingPeriodYearly:  {Amount: 54990, Currency: "USD"},
			},
			VisitsPerMonth: 1,
			PerkQuotas: map[Perk]int64{
				PerkPriorityBooking: 2,
				PerkDiscount:        2500, // up to $25.00 off per cycle
			},
		},
		Plan{
			Tier:        TierPriority,
			Name:        "Priority",
			Description: "Full coverage with emergency service",
			Prices: map[BillingPeriod]Money{
				BillingPeriodMonthly: {Amount: 9999, Currency: "USD"},
				BillingPeriodYearly:  {Amount: 99990, Currency: "USD"},
			},
			VisitsPerMonth: 2,
			PerkQuotas: map[Perk]int64{
				PerkPriorityBooking:  4,
				PerkDiscount:         7500, // up to $75.00 off per cycle
				PerkFreeService:      1,
				PerkEmergencyService: 1,
			},
		},
	)
}
