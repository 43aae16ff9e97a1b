// Package plan defines the subscription tier catalog for the DwellCare
// home-services platform: tier ordering, per-period pricing, included visit
// allowances, and tier-gated perk quotas.
//
// The catalog is a static lookup table with no state. Tier ordering
// (starter < homecare < priority) drives upgrade/downgrade decisions via
// IsUpgrade; everything else in the billing core treats tiers as opaque
// values resolved through a Catalog.
//
// # Usage
//
//	catalog := plan.Default()
//
//	p, err := catalog.Get(plan.TierPriority)
//	if err != nil {
//	    // unknown tier
//	}
//
//	price, err := catalog.Price(plan.TierHomeCare, plan.BillingPeriodMonthly)
//
// Custom catalogs can be built with NewCatalog, which validates the plan
// definitions at construction time.
package plan
