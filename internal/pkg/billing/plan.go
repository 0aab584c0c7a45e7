package billing

import "strings"

// Plan tiers offered at checkout. Tier identifiers arrive as free-form
// provider metadata.
const (
	TierStarter = "starter_5"
	TierGrowth  = "growth_15"
)

// NormalizeTier maps a provider tier identifier onto a known tier. Unknown
// values deterministically fall back to the lowest tier: billing events must
// not be rejected over cosmetic metadata issues.
func NormalizeTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case TierGrowth:
		return TierGrowth
	case TierStarter:
		return TierStarter
	default:
		return TierStarter
	}
}
