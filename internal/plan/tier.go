package plan

import (
	"errors"
	"strings"
)

// Tier is the subscription level of an account.
type Tier string

const (
	TierFree     Tier = "free"
	TierPlus     Tier = "plus"
	TierPro      Tier = "pro"
	TierUltra    Tier = "ultra"
	TierTeam     Tier = "team"
	TierBusiness Tier = "business"
)

// ErrUnknownTier indicates a tier outside the closed set. The valid set is
// fixed at deploy time, so hitting this is a deployment defect, not user input.
var ErrUnknownTier = errors.New("unknown_plan_tier")

// Tiers returns the closed tier set in catalog order.
func Tiers() []Tier {
	return []Tier{TierFree, TierPlus, TierPro, TierUltra, TierTeam, TierBusiness}
}

// ParseTier normalizes and validates a raw tier value.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierFree:
		return TierFree, nil
	case TierPlus:
		return TierPlus, nil
	case TierPro:
		return TierPro, nil
	case TierUltra:
		return TierUltra, nil
	case TierTeam:
		return TierTeam, nil
	case TierBusiness:
		return TierBusiness, nil
	default:
		return "", ErrUnknownTier
	}
}

func (t Tier) String() string { return string(t) }
