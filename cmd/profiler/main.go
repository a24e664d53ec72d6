package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
	"github.com/PentesterFlow/OpenProfiler/internal/logger"
	"github.com/PentesterFlow/OpenProfiler/internal/output"
	"github.com/PentesterFlow/OpenProfiler/pkg/analyzer"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	storePath  string
	verbose    bool
	debug      bool

	// Output flags
	outputFile   string
	outputFormat string

	// Analyze flags
	allHosts     bool
	withInsights bool
	includeFlows bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "openprofiler",
		Short: "OpenProfiler - API Traffic Profiler",
		Long: `OpenProfiler - Derives API structure from captured HTTP/WebSocket traffic.

Builds endpoint templates with inferred payload schemas, classifies RPC
conventions (gRPC, SOAP, XML-RPC, JSON-RPC), and correlates exchanges into
sessions and known multi-step flows.`,
		Version: version,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [host]",
		Short: "Build a service profile for a host",
		Long:  "Group a host's captured exchanges into endpoint templates with inferred schemas.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAnalyze,
	}

	rpcCmd := &cobra.Command{
		Use:   "rpc [host]",
		Short: "Build the RPC method catalog for a host",
		Long:  "Classify a host's exchanges against known RPC conventions and document the methods seen.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRPC,
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions [host]",
		Short: "Correlate a host's exchanges into sessions and flows",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessions,
	}

	hostsCmd := &cobra.Command{
		Use:   "hosts",
		Short: "List hosts with captured exchanges",
		RunE:  runHosts,
	}

	feedCmd := &cobra.Command{
		Use:   "feed [url]",
		Short: "Ingest exchanges from a live capture feed",
		Long:  "Subscribe to a capture producer over WebSocket and persist its exchanges until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFeed,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", "captures.db", "Capture store path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Output flags
	for _, cmd := range []*cobra.Command{analyzeCmd, rpcCmd, sessionsCmd} {
		cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
		cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, yaml)")
	}

	// Analyze flags
	analyzeCmd.Flags().BoolVar(&allHosts, "all", false, "Analyze every host in the store")
	analyzeCmd.Flags().BoolVar(&withInsights, "insights", false, "Ask the configured model endpoint for insights")

	// Session flags
	sessionsCmd.Flags().BoolVar(&includeFlows, "flows", false, "Include individual flow matches in the output")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(rpcCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(feedCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup builds the shared pieces every command needs.
func setup() (*capture.BoltStore, *analyzer.Analyzer, *logger.Logger, error) {
	cfg := analyzer.DefaultConfig()
	if configFile != "" {
		loaded, err := analyzer.LoadFromFile(configFile)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg = loaded
	}
	if verbose {
		cfg.Verbose = true
	}
	if debug {
		cfg.Debug = true
	}
	if includeFlows {
		cfg.IncludeFlows = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	level := logger.InfoLevel
	if cfg.Debug {
		level = logger.DebugLevel
	} else if !cfg.Verbose {
		level = logger.WarnLevel
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})
	logger.SetGlobal(log)

	store, err := capture.NewBoltStore(storePath)
	if err != nil {
		return nil, nil, nil, err
	}

	return store, analyzer.New(store, cfg, log), log, nil
}

// write renders a document to the selected output.
func write(doc interface{}) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	writer := output.NewWriter(format, true)
	if outputFile != "" {
		return writer.WriteFile(outputFile, doc)
	}
	return writer.Write(os.Stdout, doc)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// logMetrics emits the collector snapshot after an analysis command.
func logMetrics(a *analyzer.Analyzer, log *logger.Logger) {
	log.WithField("metrics", a.Metrics().GetSnapshot()).Debug("analysis metrics")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	store, a, log, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if allHosts {
		profiles, err := a.AnalyzeAllHosts(ctx)
		if err != nil {
			return err
		}
		logMetrics(a, log)
		return write(profiles)
	}

	if len(args) != 1 {
		return fmt.Errorf("a host argument is required unless --all is set")
	}
	host := args[0]

	profile, err := a.BuildServiceProfile(ctx, host)
	if err != nil {
		return err
	}
	logMetrics(a, log)

	if withInsights {
		if insights := a.Insights(ctx, host, profile); len(insights) > 0 {
			return write(struct {
				Profile  interface{} `json:"profile" yaml:"profile"`
				Insights interface{} `json:"insights" yaml:"insights"`
			}{profile, insights})
		}
		log.Warn("no insights available; emitting profile only")
	}
	return write(profile)
}

func runRPC(cmd *cobra.Command, args []string) error {
	store, a, log, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	doc, err := a.BuildRPCSchema(ctx, args[0])
	if err != nil {
		return err
	}
	logMetrics(a, log)
	return write(doc)
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, a, log, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	analysis, err := a.BuildSessionAnalysis(ctx, args[0])
	if err != nil {
		return err
	}
	logMetrics(a, log)
	return write(analysis)
}

func runHosts(cmd *cobra.Command, args []string) error {
	store, _, _, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	hosts, err := store.ListHosts()
	if err != nil {
		return err
	}
	for _, host := range hosts {
		fmt.Println(host)
	}
	return nil
}

func runFeed(cmd *cobra.Command, args []string) error {
	store, _, log, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	feed := capture.NewFeed(store, capture.DefaultFeedConfig(), log)
	ingested, err := feed.Run(ctx, args[0])
	log.Infof("ingested %d exchanges", ingested)
	return err
}
