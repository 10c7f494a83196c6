package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/agencyops/agencyops/internal/commissions"
	"github.com/agencyops/agencyops/internal/quotes"
)

// TiersCommand prints the default tier table and, when count is not negative,
// the tier that count resolves to.
func TiersCommand(count int, stdout, stderr io.Writer) int {
	table := commissions.DefaultTiers()
	if err := commissions.ValidateTierTable(table); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tMIN\tMAX\tAMOUNT")
	for _, rule := range table {
		upper := "-"
		if rule.MaxContracts != nil {
			upper = fmt.Sprint(*rule.MaxContracts)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", rule.Tier, rule.MinContracts, upper, quotes.FormatAmount(rule.UnitAmount))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if count < 0 {
		return 0
	}
	rule, err := commissions.ResolveTier(count, table)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "\n%d contracts -> %s (%s)\n", count, rule.Tier, quotes.FormatAmount(rule.UnitAmount))
	return 0
}
