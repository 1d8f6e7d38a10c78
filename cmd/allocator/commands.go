package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
	"github.com/aristath/allocator/pkg/logger"
)

type options struct {
	prices      string
	tradingDays int
	logLevel    string
	asJSON      bool
	log         zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "allocator",
		Short: "Portfolio weight optimisation from daily closing prices",
		Long: `allocator reads a wide CSV of daily closes (a date column followed by
one column per ticker) and computes risk metrics or optimal weights.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.tradingDays <= 0 {
				return fmt.Errorf("--trading-days must be positive")
			}
			opts.log = logger.New(logger.Config{Level: opts.logLevel, Pretty: true}).
				Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.prices, "prices", "", "CSV file of daily closes (date,TICKER,...)")
	flags.IntVar(&opts.tradingDays, "trading-days", returns.DefaultTradingDaysPerYear, "trading days per year used to annualise")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(newOptimizeCmd(opts), newMetricsCmd(opts), newImportCmd(opts))
	return root
}

func newOptimizeCmd(opts *options) *cobra.Command {
	var (
		objective string
		maxIter   int
		runtime   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Find the max-Sharpe or min-volatility weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadReturns(opts.prices)
			if err != nil {
				return err
			}

			settings := optimization.DefaultSettings()
			settings.TradingDaysPerYear = opts.tradingDays
			settings.MaxIterations = maxIter
			settings.Runtime = runtime

			result, err := optimization.NewOptimizer(settings, opts.log).Optimize(cmd.Context(), m, optimization.Objective(strings.ToLower(strings.TrimSpace(objective))))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, result)
			}
			if err := writeWeights(out, result.Weights); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nobjective %s, %s after %d iterations\n", result.Objective, result.Status, result.Iterations)
			return writeMetrics(out, result.Metrics)
		},
	}

	cmd.Flags().StringVar(&objective, "objective", string(optimization.MaxSharpe), `"sharpe" or "min_vol"`)
	cmd.Flags().IntVar(&maxIter, "max-iterations", optimization.DefaultSettings().MaxIterations, "solver iteration cap")
	cmd.Flags().DurationVar(&runtime, "timeout", 0, "solver runtime budget (0 = none)")
	return cmd
}

func newMetricsCmd(opts *options) *cobra.Command {
	var weights string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Annual return, volatility and Sharpe ratio of given weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := utils.ParseFloatCSV(weights)
			if err != nil {
				return fmt.Errorf("invalid --weights: %w", err)
			}

			m, err := loadReturns(opts.prices)
			if err != nil {
				return err
			}

			metrics, err := returns.Calculator{TradingDaysPerYear: float64(opts.tradingDays)}.RiskMetrics(m, w)
			if err != nil {
				return err
			}
			metrics = metrics.Round(optimization.ReportPrecision)

			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), metrics)
			}
			return writeMetrics(cmd.OutOrStdout(), metrics)
		},
	}

	cmd.Flags().StringVar(&weights, "weights", "", "comma-separated weights in CSV column order")
	_ = cmd.MarkFlagRequired("weights")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load the CSV into the service's price history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := readSeries(opts.prices)
			if err != nil {
				return err
			}

			db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileStandard, Name: "history"})
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}

			repo := historical.NewPriceRepository(db.Conn(), opts.log)
			ctx := cmd.Context()
			total := 0
			for _, s := range series {
				n, err := repo.Upsert(ctx, s)
				if err != nil {
					return err
				}
				total += n
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d prices\n", s.Ticker, n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d prices into %s\n", total, dbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "./data/history.db", "history database path")
	return cmd
}

func readSeries(path string) ([]returns.PriceSeries, error) {
	if path == "" {
		return nil, fmt.Errorf("--prices is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return historical.ReadWideCSV(f)
}

func loadReturns(path string) (*returns.ReturnsMatrix, error) {
	series, err := readSeries(path)
	if err != nil {
		return nil, err
	}
	table, err := returns.Align(series...)
	if err != nil {
		return nil, err
	}
	return returns.DailyReturns(table)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeWeights(out io.Writer, weights []optimization.AssetWeight) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tWEIGHT")
	for _, w := range weights {
		fmt.Fprintf(tw, "%s\t%.4f\n", w.Ticker, w.Weight)
	}
	return tw.Flush()
}

func writeMetrics(out io.Writer, m returns.Metrics) error {
	sharpe := "undefined"
	if v, ok := m.Sharpe.Value(); ok {
		sharpe = fmt.Sprintf("%.4f", v)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "annual return\t%.4f\n", m.AnnualReturn)
	fmt.Fprintf(tw, "volatility\t%.4f\n", m.Volatility)
	fmt.Fprintf(tw, "sharpe ratio\t%s\n", sharpe)
	return tw.Flush()
}
