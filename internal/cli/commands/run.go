package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/couchcryptid/climate-series-service/internal/adapter/csv"
	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/cli/ui"
	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/observability"
	"github.com/couchcryptid/climate-series-service/internal/pipeline"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"
)

// Output formats.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

type runOptions struct {
	region      string
	data        string
	kind        string
	start       string
	end         string
	statistic   string
	output      string
	scale       float64
	cloudLimit  float64
	year        int
	concurrency int
	timeout     time.Duration
	verbose     bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one analysis over a GeoJSON region",
		Long: `Run one analysis for the features of a GeoJSON file against a local
NetCDF dataset laid out as <data>/<variable>/*.nc.

The date range is half-open. Monthly analyses widen it to whole calendar
years, so --start 2023-03-01 --end 2024-02-01 covers all of 2023.`,
		Example: `  $ eoctl run -r farm.geojson -k water_balance --start 2023-01-01 --end 2024-01-01
  $ eoctl run -r farm.geojson -k spectral_indices --start 2023-06-01 --end 2023-09-01 --cloud-limit 10 -o json
  $ eoctl run -r farm.geojson -k land_cover --start 2022-01-01 --end 2023-01-01 --year 2022`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalysis(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.region, "region", "r", "", "GeoJSON file with the region of interest")
	f.StringVarP(&opts.data, "data", "d", sharedcfg.EnvOrDefault("RASTER_DATA_DIR", "./data"), "NetCDF dataset directory")
	f.StringVarP(&opts.kind, "kind", "k", string(pipeline.KindWaterBalance), "analysis: water_balance, drought, spectral_indices, land_cover")
	f.StringVar(&opts.start, "start", "", "first day, YYYY-MM-DD")
	f.StringVar(&opts.end, "end", "", "day after the last day, YYYY-MM-DD")
	f.StringVarP(&opts.statistic, "statistic", "s", "mean", "per-feature statistic: mean, sum, min, max, count, stddev")
	f.StringVarP(&opts.output, "output", "o", formatTable, "output format: table, csv, json")
	f.Float64Var(&opts.scale, "scale", 0, "nominal scale in metres (0 uses the analysis default)")
	f.Float64Var(&opts.cloudLimit, "cloud-limit", pipeline.DefaultCloudLimit, "maximum scene cloud percentage for spectral indices")
	f.IntVar(&opts.year, "year", 0, "land-cover classification year (0 uses the start year)")
	f.IntVar(&opts.concurrency, "concurrency", 4, "parallel band reads")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "abort the run after this long")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress to stderr")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func (o *runOptions) input() (pipeline.RunInput, error) {
	switch o.output {
	case formatTable, formatCSV, formatJSON:
	default:
		return pipeline.RunInput{}, fmt.Errorf("unknown output format %q", o.output)
	}
	kind, err := pipeline.ParseKind(o.kind)
	if err != nil {
		return pipeline.RunInput{}, err
	}
	stat, err := domain.ParseStatistic(o.statistic)
	if err != nil {
		return pipeline.RunInput{}, err
	}
	start, err := time.Parse(time.DateOnly, o.start)
	if err != nil {
		return pipeline.RunInput{}, fmt.Errorf("--start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, o.end)
	if err != nil {
		return pipeline.RunInput{}, fmt.Errorf("--end: %w", err)
	}
	rng, err := domain.NewDateRange(start, end)
	if err != nil {
		return pipeline.RunInput{}, err
	}

	data, err := os.ReadFile(o.region)
	if err != nil {
		return pipeline.RunInput{}, fmt.Errorf("read region: %w", err)
	}
	region, err := domain.ParseRegion(data)
	if err != nil {
		return pipeline.RunInput{}, err
	}

	return pipeline.RunInput{
		Kind:         kind,
		Region:       region,
		Range:        rng,
		Statistic:    stat,
		NominalScale: o.scale,
		CloudLimit:   o.cloudLimit,
		Year:         o.year,
	}, nil
}

func runAnalysis(cmd *cobra.Command, o *runOptions) error {
	in, err := o.input()
	if err != nil {
		return err
	}
	out, status := cmd.OutOrStdout(), cmd.ErrOrStderr()

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(status, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewLocalMetrics()

	provider := netcdf.NewProvider(o.data)
	if err := provider.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	catalog := pipeline.NewCatalog(provider, pipeline.DefaultRetryPolicy(), o.concurrency, logger, metrics)
	analyzer := pipeline.NewAnalyzer(catalog, logger, metrics, pipeline.Options{})

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	if o.output == formatTable {
		ui.PrintInfo(status, "running %s for %d features from %s to %s", in.Kind, in.Region.Len(),
			in.Range.Start.Format(time.DateOnly), in.Range.End.Format(time.DateOnly))
	}
	started := time.Now()
	res, err := analyzer.Run(ctx, in)
	if err != nil {
		return err
	}

	for _, gap := range res.Gaps {
		ui.PrintWarning(status, "%s", gap.UserMessage())
	}
	if err := res.JoinGap(); err != nil {
		ui.PrintWarning(status, "%s", errorMessage(err))
	}

	switch o.output {
	case formatCSV:
		return csv.WriteRows(out, res.Rows)
	case formatJSON:
		body, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(out, string(body))
		return err
	}

	writeTables(out, res)
	ui.PrintSuccess(status, "run %s completed in %s", res.RunID, time.Since(started).Round(time.Millisecond))
	return nil
}

func writeTables(w io.Writer, res pipeline.Result) {
	section := func(title, body string) {
		if body == "" {
			return
		}
		fmt.Fprintln(w, ui.Styles.Title.Render(strings.ToUpper(title)))
		fmt.Fprintln(w, body)
	}

	switch res.Kind {
	case pipeline.KindDrought:
		section("drought", ui.RenderDrought(res.Drought))
	case pipeline.KindLandCover:
		section("land cover", ui.RenderLandCover(res.LandCover))
	default:
		section(string(res.Kind), ui.RenderRows(res.Rows))
		section("summary", ui.RenderSummary(res.Summary))
		if res.Drought != nil {
			section("drought", ui.RenderDrought(res.Drought))
		}
	}
}
