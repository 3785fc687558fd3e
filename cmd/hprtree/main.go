package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bmharper/hprtree-go"
	"github.com/bmharper/hprtree-go/internal/pointfile"
)

var Name = "hprtree"
var Version = "0.1.0"

var logger zerolog.Logger

func main() {
	// Configure.
	config()

	// Configure as CLI Logger to start
	logger = CLILogger(os.Stderr)

	cmdRoot := newRootCommand(os.Stdout)
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var cmdQuery = &cobra.Command{
		Use:   "query",
		Short: "Index a point file and print the points inside each bounding box",
		Long: `Loads every point from --input, builds an index over them, and runs one query
per --bbox. Matches are written to stdout in the format of the input file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(out)
		},
	}
	cmdQuery.Flags().StringArrayP(
		"bbox",
		"b",
		nil,
		"Query box as minx,miny,maxx,maxy. May be repeated.",
	)

	var cmdStats = &cobra.Command{
		Use:   "stats",
		Short: "Index a point file and report on the resulting tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}

	var cmdRoot = &cobra.Command{
		Use:           Name,
		Short:         "Static Hilbert R-Tree index for 2D points",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.Level(viper.GetInt("loglevel")))
			zerolog.TimeFieldFormat = time.RFC3339
		},
	}
	cmdRoot.PersistentFlags().StringP(
		"input",
		"i",
		"",
		"Point file to index (CSV or GeoJSON)",
	)
	cmdRoot.PersistentFlags().StringP(
		"format",
		"f",
		"",
		"Input format: csv or geojson. Guessed from the file extension if empty.",
	)
	cmdRoot.PersistentFlags().IntP(
		"loglevel",
		"v",
		int(zerolog.InfoLevel),
		"Log level, from -1 (trace) to 5 (panic)",
	)
	cmdRoot.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "%s %s\n", Name, Version)
		},
	})
	cmdRoot.AddCommand(cmdQuery, cmdStats)

	viper.BindPFlag("input", cmdRoot.PersistentFlags().Lookup("input"))
	viper.BindPFlag("format", cmdRoot.PersistentFlags().Lookup("format"))
	viper.BindPFlag("loglevel", cmdRoot.PersistentFlags().Lookup("loglevel"))
	viper.BindPFlag("bbox", cmdQuery.Flags().Lookup("bbox"))
	return cmdRoot
}

// Viper init
func config() {
	viper.SetConfigName("config")                       // name of config file (without extension)
	viper.AddConfigPath(fmt.Sprintf("/etc/%s/", Name))  // path to look for the config file in
	viper.AddConfigPath(fmt.Sprintf("$HOME/.%s", Name)) // call multiple times to add many search paths
	viper.AddConfigPath(".")                            // optionally look for config in the working directory
	viper.SetEnvPrefix(Name)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // a missing config file is fine, flags and env cover everything
}

func CLILogger(out io.Writer) zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{
		Out:     out,
		NoColor: false,
	})
	return l.With().Timestamp().Logger()
}

// indexed is a loaded point file, and the index built over it
type indexed struct {
	format  pointfile.Format
	records []*pointfile.Record
	tree    *hprtree.Tree[*pointfile.Record]
}

func load(registry metrics.Registry) (*indexed, error) {
	path := viper.GetString("input")
	if path == "" {
		return nil, fmt.Errorf("no input file given, use --input")
	}
	format, err := pointfile.ParseFormat(viper.GetString("format"), path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := pointfile.Read(f, format)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("input", path).
		Str("format", string(format)).
		Int("points", len(records)).
		Msg("loaded")

	buildTimer := metrics.GetOrRegisterTimer("build", registry)
	var tree *hprtree.Tree[*pointfile.Record]
	buildTimer.Time(func() {
		tree, err = pointfile.Index(records)
	})
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("points", tree.Len()).
		Int("layers", tree.NumLayers()).
		Dur("took", time.Duration(buildTimer.Max())).
		Msg("index built")

	return &indexed{format: format, records: records, tree: tree}, nil
}

func runQuery(out io.Writer) error {
	registry := metrics.NewRegistry()

	boxes := []hprtree.BBox{}
	for _, s := range viper.GetStringSlice("bbox") {
		b, err := pointfile.ParseBBox(s)
		if err != nil {
			logger.Error().Err(err).Msg("invalid query")
			return err
		}
		boxes = append(boxes, b)
	}
	if len(boxes) == 0 {
		err := fmt.Errorf("no query given, use --bbox")
		logger.Error().Err(err).Msg("invalid query")
		return err
	}

	idx, err := load(registry)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build index")
		return err
	}

	queryTimer := metrics.GetOrRegisterTimer("query", registry)
	matches := metrics.GetOrRegisterCounter("matches", registry)
	results := []*pointfile.Record{}
	for i := range boxes {
		start := time.Now()
		results = idx.tree.QueryFast(&boxes[i], results)
		queryTimer.UpdateSince(start)
		matches.Inc(int64(len(results)))

		logger.Debug().
			Stringer("bbox", boxes[i]).
			Int("matches", len(results)).
			Msg("query")
		if err := pointfile.Write(out, idx.format, results); err != nil {
			logger.Error().Err(err).Msg("failed to write results")
			return err
		}
	}

	logger.Info().
		Int64("queries", queryTimer.Count()).
		Int64("matches", matches.Count()).
		Dur("mean", time.Duration(queryTimer.Mean())).
		Msg("done")
	return nil
}

func runStats() error {
	registry := metrics.NewRegistry()
	idx, err := load(registry)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build index")
		return err
	}

	extent := pointfile.Extent(idx.records)
	logger.Info().
		Int("points", idx.tree.Len()).
		Stringer("extent", idx.tree.Extent()).
		Floats64("bound", []float64{extent.Min.X(), extent.Min.Y(), extent.Max.X(), extent.Max.Y()}).
		Int("layers", idx.tree.NumLayers()).
		Float32("density", idx.tree.AvgEntries()).
		Int("bytes", idx.tree.SizeInBytes()).
		Int("projected_bytes", hprtree.ProjectedSizeInBytes[*pointfile.Record](idx.tree.Len())).
		Msg("stats")
	return nil
}
