//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package checker

import (
	"fmt"
	"io"
	"math"

	"github.com/markkurossi/tabulate"
)

// Report holds the check results.
type Report struct {
	Tolerance float64
	Results   []Result
}

// Count returns the number of results with the status.
func (r *Report) Count(status Status) int {
	var count int
	for _, result := range r.Results {
		if result.Status == status {
			count++
		}
	}
	return count
}

// Discrepancies returns the results that did not match.
func (r *Report) Discrepancies() []Result {
	var result []Result
	for _, v := range r.Results {
		if v.Status != Match {
			result = append(result, v)
		}
	}
	return result
}

// ExitCode returns the process exit code: 0 if all samples matched
// and 1 otherwise.
func (r *Report) ExitCode() int {
	if len(r.Discrepancies()) > 0 {
		return 1
	}
	return 0
}

// Print prints the discrepancies and the summary to w. If verbose is
// set, all results are printed.
func (r *Report) Print(w io.Writer, verbose bool) {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("ID").SetAlign(tabulate.MR)
	tab.Header("Status").SetAlign(tabulate.ML)
	tab.Header("Legacy").SetAlign(tabulate.MR)
	tab.Header("Replicated").SetAlign(tabulate.MR)
	tab.Header("Details").SetAlign(tabulate.ML)

	for _, result := range r.Results {
		if result.Status == Match && !verbose {
			continue
		}
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", result.ID))
		col := row.Column(result.Status.String())
		if result.Status != Match {
			col.SetFormat(tabulate.FmtBold)
		}
		row.Column(formatDistance(result.Legacy))
		row.Column(formatDistance(result.Replicated))
		row.Column(result.Details)
	}

	summary := func(label string, count int) {
		row := tab.Row()
		row.Column(label).SetFormat(tabulate.FmtItalic)
		row.Column(fmt.Sprintf("%d", count)).SetFormat(tabulate.FmtItalic)
		row.Column("")
		row.Column("")
		row.Column("")
	}
	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column(fmt.Sprintf("%d", len(r.Results))).SetFormat(tabulate.FmtBold)
	row.Column("")
	row.Column("")
	row.Column("")
	summary("├╴Match", r.Count(Match))
	summary("├╴Mismatch", r.Count(Mismatch))
	summary("╰╴Error", r.Count(Failed))

	tab.Print(w)
}

func formatDistance(d float64) string {
	if math.IsNaN(d) {
		return "-"
	}
	return fmt.Sprintf("%.6f", d)
}
