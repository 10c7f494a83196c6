package commissions

import (
	"fmt"
	"sort"
)

func bound(v int) *int { return &v }

// DefaultTiers is the stock tier table.
func DefaultTiers() []TierRule {
	return []TierRule{
		{Tier: TierBronze, MinContracts: 0, MaxContracts: bound(10), UnitAmount: 500},
		{Tier: TierSilver, MinContracts: 11, MaxContracts: bound(20), UnitAmount: 1000},
		{Tier: TierGold, MinContracts: 21, MaxContracts: bound(30), UnitAmount: 1500},
		{Tier: TierPlatinum, MinContracts: 31, UnitAmount: 2000},
	}
}

func sortedTiers(table []TierRule) []TierRule {
	sorted := append([]TierRule(nil), table...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinContracts < sorted[j].MinContracts })
	return sorted
}

// ResolveTier picks the highest tier, by MinContracts, whose range holds
// count. The payout is the tier's flat UnitAmount. The input table is not
// modified.
func ResolveTier(count int, table []TierRule) (TierRule, error) {
	var (
		match TierRule
		found bool
	)
	for _, rule := range sortedTiers(table) {
		if rule.Contains(count) {
			match, found = rule, true
		}
	}
	if !found {
		return TierRule{}, fmt.Errorf("%w: %d", ErrNoTier, count)
	}
	return match, nil
}

// ValidateTierTable checks that the tiers cover every count from zero in
// contiguous, non-overlapping ranges ending in one unbounded tier.
func ValidateTierTable(table []TierRule) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidTierTable)
	}
	sorted := sortedTiers(table)
	seen := make(map[Tier]bool, len(sorted))
	next := 0
	for i, rule := range sorted {
		if seen[rule.Tier] {
			return fmt.Errorf("%w: tier %s listed twice", ErrInvalidTierTable, rule.Tier)
		}
		seen[rule.Tier] = true
		if rule.UnitAmount < 0 {
			return fmt.Errorf("%w: tier %s has negative amount", ErrInvalidTierTable, rule.Tier)
		}
		if rule.MinContracts != next {
			return fmt.Errorf("%w: tier %s starts at %d, expected %d", ErrInvalidTierTable, rule.Tier, rule.MinContracts, next)
		}
		last := i == len(sorted)-1
		if rule.MaxContracts == nil {
			if !last {
				return fmt.Errorf("%w: only the highest tier may be unbounded", ErrInvalidTierTable)
			}
			return nil
		}
		if *rule.MaxContracts < rule.MinContracts {
			return fmt.Errorf("%w: tier %s max below min", ErrInvalidTierTable, rule.Tier)
		}
		next = *rule.MaxContracts + 1
	}
	return fmt.Errorf("%w: highest tier must be unbounded", ErrInvalidTierTable)
}
