package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/debris-avoidance-sim/internal/recorder"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, or the events of one run",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		if db == "" {
			db = viper.GetString("record.path")
		}
		if db == "" {
			return fmt.Errorf("no database: pass --db or set record.path")
		}
		runID, _ := cmd.Flags().GetString("run")
		kinds, _ := cmd.Flags().GetStringSlice("kind")
		return printHistory(cmd.Context(), db, runID, kinds, cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().String("db", "", "SQLite database written by run --db")
	historyCmd.Flags().String("run", "", "show the events of this run")
	historyCmd.Flags().StringSlice("kind", nil, "only show these event kinds")

	rootCmd.AddCommand(historyCmd)
}

func printHistory(ctx context.Context, db, runID string, kindNames []string, w io.Writer) error {
	rec, err := recorder.Open(ctx, db, nil)
	if err != nil {
		return err
	}
	defer rec.Close()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if runID == "" {
		runs, err := rec.Runs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "RUN\tSCENARIO\tTICKS\tSCORE\tSTATUS")
		for _, r := range runs {
			status := "running"
			switch {
			case r.MissionOver:
				status = "mission over"
			case r.Finished:
				status = "finished"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Scenario,
				humanize.Comma(int64(r.LastTick)), humanize.CommafWithDigits(r.FinalScore, 1), status)
		}
		return nil
	}

	if _, err := rec.Run(ctx, runID); err != nil {
		return err
	}
	var kinds []model.EventKind
	for _, name := range kindNames {
		k, ok := model.ParseEventKind(strings.ToLower(name))
		if !ok {
			return fmt.Errorf("unknown event kind %q", name)
		}
		kinds = append(kinds, k)
	}
	events, err := rec.Events(ctx, runID, kinds...)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "SEQ\tTICK\tKIND\tPARTICIPANTS\tDISTANCE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", ev.Seq, ev.Tick, ev.Kind,
			strings.Join(ev.Participants, ","), strings.TrimPrefix(distance(ev), " "))
	}
	return nil
}
