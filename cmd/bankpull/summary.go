package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jakopako/bankpull/internal/types"
	"github.com/olekukonko/tablewriter"
)

func printSummary(w io.Writer, res *types.RunResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Account", "Outcome", "File", "Error")
	for _, a := range res.Accounts {
		msg := a.Error
		if msg == "" && a.FilterError != "" {
			msg = "filter: " + a.FilterError
		}
		if err := table.Append([]string{a.Name, string(a.Outcome), a.File, msg}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d imported, %d skipped, %d failed in %s\n",
		res.Count(types.OutcomeImported),
		res.Count(types.OutcomeSkipped),
		len(res.Accounts)-res.Count(types.OutcomeImported)-res.Count(types.OutcomeSkipped),
		res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	return err
}
