package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/arr/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// reportFlags are the filters and overrides shared by report commands.
type reportFlags struct {
	date      string
	start     string
	end       string
	timeframe string
	sample    string
	exclusion string
	customer  string
	contract  string

	ignoreZeros bool
	flags       *pflag.FlagSet
}

func (f *reportFlags) bindScope(cmd *cobra.Command) {
	f.flags = cmd.Flags()
	f.flags.StringVar(&f.exclusion, "exclusion", "", "renewed-contract exclusion: global or active (default from reporting.yml)")
	f.flags.StringVar(&f.customer, "customer", "", "restrict to one customer id")
	f.flags.StringVar(&f.contract, "contract", "", "restrict to one contract id")
	f.flags.BoolVar(&f.ignoreZeros, "ignore-zeros", false, "drop customers with a zero amount")
}

func (f *reportFlags) bindPoint(cmd *cobra.Command) {
	f.bindScope(cmd)
	f.flags.StringVar(&f.date, "date", "", "as-of date YYYY-MM-DD (default today)")
	f.flags.StringVar(&f.timeframe, "timeframe", "", "M or Q (default from reporting.yml)")
	f.flags.StringVar(&f.sample, "sample", "", "revenue sample day: mid or end")
}

func (f *reportFlags) bindRange(cmd *cobra.Command) {
	f.bindScope(cmd)
	f.flags.StringVar(&f.start, "start", "", "first day YYYY-MM-DD (default eleven months before end)")
	f.flags.StringVar(&f.end, "end", "", "last day YYYY-MM-DD (default today)")
	f.flags.StringVar(&f.timeframe, "timeframe", "", "M or Q (default from reporting.yml)")
	f.flags.StringVar(&f.sample, "sample", "", "revenue sample day: mid or end")
}

func (f *reportFlags) scope() (arrdomain.Scope, error) {
	var scope arrdomain.Scope
	var err error
	if scope.CustomerID, err = parseID("customer", f.customer); err != nil {
		return scope, err
	}
	if scope.ContractID, err = parseID("contract", f.contract); err != nil {
		return scope, err
	}
	if f.flags != nil && f.flags.Changed("ignore-zeros") {
		ignore := f.ignoreZeros
		scope.IgnoreZeros = &ignore
	}
	scope.Exclusion = arrdomain.ExclusionScope(strings.ToLower(strings.TrimSpace(f.exclusion)))
	return scope, nil
}

func (f *reportFlags) options() (arrdomain.Timeframe, arrdomain.SampleDay, error) {
	var (
		tf     arrdomain.Timeframe
		sample arrdomain.SampleDay
		err    error
	)
	if strings.TrimSpace(f.timeframe) != "" {
		if tf, err = engine.ParseTimeframe(f.timeframe); err != nil {
			return "", "", err
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(f.sample)); raw != "" {
		if sample, err = engine.ParseSampleDay(raw); err != nil {
			return "", "", err
		}
	}
	return tf, sample, nil
}

func (f *reportFlags) pointRequest() (arrdomain.PointRequest, error) {
	scope, err := f.scope()
	if err != nil {
		return arrdomain.PointRequest{}, err
	}
	date, err := parseDate("date", f.date)
	if err != nil {
		return arrdomain.PointRequest{}, err
	}
	tf, sample, err := f.options()
	if err != nil {
		return arrdomain.PointRequest{}, err
	}
	return arrdomain.PointRequest{Scope: scope, Date: date, Timeframe: tf, Sample: sample}, nil
}

func (f *reportFlags) rangeRequest() (arrdomain.RangeRequest, error) {
	scope, err := f.scope()
	if err != nil {
		return arrdomain.RangeRequest{}, err
	}
	start, err := parseDate("start", f.start)
	if err != nil {
		return arrdomain.RangeRequest{}, err
	}
	end, err := parseDate("end", f.end)
	if err != nil {
		return arrdomain.RangeRequest{}, err
	}
	tf, sample, err := f.options()
	if err != nil {
		return arrdomain.RangeRequest{}, err
	}
	return arrdomain.RangeRequest{Scope: scope, Start: start, End: end, Timeframe: tf, Sample: sample}, nil
}

func parseDate(name, value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.DateOnly, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s %q", arrdomain.ErrInvalidDate, name, value)
	}
	return parsed, nil
}

func parseID(name, value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid --%s %q", name, value)
	}
	return id, nil
}

type pointReport func(ctx context.Context, svc arrdomain.Service, req arrdomain.PointRequest) (any, error)

type rangeReport func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error)

func newPointCommand(use, short string, run pointReport) *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.pointRequest()
			if err != nil {
				return err
			}
			return withARRService(cmd.Context(), func(ctx context.Context, svc arrdomain.Service) error {
				resp, err := run(ctx, svc, req)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolvedFormat(), resp)
			})
		},
	}
	flags.bindPoint(cmd)
	return cmd
}

func newRangeCommand(use, short string, run rangeReport) *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.rangeRequest()
			if err != nil {
				return err
			}
			return withARRService(cmd.Context(), func(ctx context.Context, svc arrdomain.Service) error {
				resp, err := run(ctx, svc, req)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolvedFormat(), resp)
			})
		},
	}
	flags.bindRange(cmd)
	return cmd
}

func newTableCommand() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the ARR table, one row per recurring segment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := flags.scope()
			if err != nil {
				return err
			}
			return withARRService(cmd.Context(), func(ctx context.Context, svc arrdomain.Service) error {
				resp, err := svc.Table(ctx, scope)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolvedFormat(), resp)
			})
		},
	}
	flags.bindScope(cmd)
	return cmd
}

func reportCommands() []*cobra.Command {
	return []*cobra.Command{
		newTableCommand(),
		newPointCommand("arr", "Customer ARR at a date", func(ctx context.Context, svc arrdomain.Service, req arrdomain.PointRequest) (any, error) {
			return svc.CustomerARR(ctx, req)
		}),
		newPointCommand("carr", "Customer contracted ARR at a date", func(ctx context.Context, svc arrdomain.Service, req arrdomain.PointRequest) (any, error) {
			return svc.CustomerCARR(ctx, req)
		}),
		newPointCommand("new-arr", "New ARR booked in the period containing a date", func(ctx context.Context, svc arrdomain.Service, req arrdomain.PointRequest) (any, error) {
			return svc.NewARR(ctx, req)
		}),
		newPointCommand("retention", "Trailing twelve month retention ending at a date", func(ctx context.Context, svc arrdomain.Service, req arrdomain.PointRequest) (any, error) {
			return svc.Retention(ctx, req)
		}),
		newRangeCommand("periods", "Customer ARR at the end of each period", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.CustomerARRByPeriod(ctx, req)
		}),
		newRangeCommand("changes", "ARR change table: beginning, new, expansion, contraction, churn, ending", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.Changes(ctx, req)
		}),
		newRangeCommand("bookings", "Bookings per customer and period", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.Bookings(ctx, req)
		}),
		newRangeCommand("bookings-summary", "Bookings per customer over a range", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.BookingsSummary(ctx, req)
		}),
		newRangeCommand("series", "Monthly bookings, ARR and CARR", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.Series(ctx, req)
		}),
		newRangeCommand("revenue", "Monthly revenue per customer", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.Revenue(ctx, req)
		}),
		newRangeCommand("mrr", "Monthly MRR movements", func(ctx context.Context, svc arrdomain.Service, req arrdomain.RangeRequest) (any, error) {
			return svc.MRRMetrics(ctx, req)
		}),
	}
}

func init() {
	rootCmd.AddCommand(reportCommands()...)
}
