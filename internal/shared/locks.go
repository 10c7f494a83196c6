package shared

import "fmt"

// CommissionLockKey builds the redis key guarding generation of one month.
func CommissionLockKey(period string) string {
	return fmt.Sprintf("commissions:period:%s:lock", period)
}
