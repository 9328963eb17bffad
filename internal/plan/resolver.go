package plan

// Resolver maps plan tiers to their static entitlements. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the entitlement for a tier. Unknown tiers fail with
// ErrUnknownTier.
func (r *Resolver) Resolve(tier Tier) (Entitlement, error) {
	ent, ok := entitlements[tier]
	if !ok {
		return Entitlement{}, ErrUnknownTier
	}
	return ent, nil
}

// MaxCards returns the per-generation card ceiling for a tier.
func (r *Resolver) MaxCards(tier Tier) (int, error) {
	ent, err := r.Resolve(tier)
	if err != nil {
		return 0, err
	}
	return ent.MaxCardsPerGeneration, nil
}

// HasFeature reports whether a tier includes a feature flag.
func (r *Resolver) HasFeature(tier Tier, feature string) bool {
	ent, err := r.Resolve(tier)
	if err != nil {
		return false
	}
	for _, f := range ent.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// CanExport reports whether a tier permits an export format.
func (r *Resolver) CanExport(tier Tier, format ExportFormat) bool {
	ent, err := r.Resolve(tier)
	if err != nil {
		return false
	}
	for _, f := range ent.ExportFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Entitlements returns the full plan catalog in tier order.
func (r *Resolver) Entitlements() []Entitlement {
	out := make([]Entitlement, 0, len(entitlements))
	for _, tier := range Tiers() {
		out = append(out, entitlements[tier])
	}
	return out
}
