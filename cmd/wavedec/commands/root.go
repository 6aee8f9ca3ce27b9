// Package commands implements the wavedec command line interface.
package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"wavedec/common"
	"wavedec/decoder"
	"wavedec/printer"
	"wavedec/trace"
	"wavedec/vcd"
)

var (
	version string
	commit  string
	date    string
)

var (
	flagSignals    bool
	flagFilter     string
	flagDecoder    string
	flagConfig     string
	flagDebug      bool
	flagCPUProfile string
)

// rootCmd decodes bus transactions out of a waveform file.
var rootCmd = &cobra.Command{
	Use:   "wavedec <wavefile>",
	Short: "Decode bus packets and transactions from waveform files",
	Long: `wavedec reads a VCD waveform capture and decodes the configured bus
instances into packets and protocol transactions.

Decoder instances are configured as JSON (--decoder) or loaded from a
JSON/YAML/TOML file (--config):

  wavedec dump.vcd --decoder '{"rx": {"cls": "AXIStream", "filter": "core.rx"}}'`,
	Args:    cobra.ExactArgs(1),
	Version: version,
	RunE:    run,
}

// Execute runs the CLI.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.Flags().BoolVar(&flagSignals, "signals", false, "print all signals in the file and exit")
	rootCmd.Flags().StringVar(&flagFilter, "filter", "", "pattern restricting the signals to decode over")
	rootCmd.Flags().StringVar(&flagDecoder, "decoder", "", "decoder instance configuration as inline JSON")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "decoder instance configuration file (.json/.yaml/.toml)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&flagCPUProfile, "cpuprofile", "", "write a CPU profile into the given directory")
}

func run(cmd *cobra.Command, args []string) error {
	if flagCPUProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(flagCPUProfile)).Stop()
	}

	level := common.SeverityInfo
	if flagDebug {
		level = common.SeverityDebug
	}
	log := common.InitLogger("wavedec", level).With("run", uuid.New().String())

	wavefile := args[0]
	reader, err := vcd.ParseFile(wavefile)
	if err != nil {
		log.Error(err)
		return err
	}
	store, err := trace.Load(reader)
	if err != nil {
		log.Error(err)
		return err
	}
	log.Logf(common.SeverityInfo, "opened %s: %d signals, timescale %dfs",
		wavefile, len(store.Signals()), store.TimescaleFs())

	if flagFilter != "" {
		store, err = store.Filter(flagFilter)
		if err != nil {
			log.Error(err)
			return err
		}
		log.Logf(common.SeverityDebug, "filter %q leaves %d signals", flagFilter, len(store.Signals()))
	}

	if flagSignals {
		return printer.SignalTable(os.Stdout, store.Signals())
	}

	specs, err := loadSpecs()
	if err != nil {
		log.Error(err)
		return err
	}
	if len(specs) == 0 {
		err := fmt.Errorf("no decoder instances configured; pass --decoder or --config")
		log.Error(err)
		return err
	}

	instances, diags := decoder.Build(decoder.DefaultRegistry(), store, specs, log)
	for _, d := range diags {
		printer.Diagnostic(os.Stderr, d)
	}

	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)

	events := 0
	for _, name := range names {
		inst := instances[name]
		log.Logf(common.SeverityDebug, "decoding instance %s", name)
		for {
			ev, ok := inst.Next()
			if !ok {
				break
			}
			printer.Event(os.Stdout, os.Stderr, ev)
			events++
		}
	}
	log.Logf(common.SeverityInfo, "decoded %d events from %d instances", events, len(instances))

	if len(diags) > 0 && len(instances) == 0 {
		return fmt.Errorf("no decoder instance constructed")
	}
	return nil
}

// loadSpecs merges --config file specs with inline --decoder JSON; inline
// entries win on name collision.
func loadSpecs() (map[string]decoder.InstanceSpec, error) {
	specs := make(map[string]decoder.InstanceSpec)
	if flagConfig != "" {
		fromFile, err := decoder.LoadSpecFile(flagConfig)
		if err != nil {
			return nil, err
		}
		for name, spec := range fromFile {
			specs[name] = spec
		}
	}
	if flagDecoder != "" {
		inline, err := decoder.ParseSpec([]byte(flagDecoder))
		if err != nil {
			return nil, err
		}
		for name, spec := range inline {
			specs[name] = spec
		}
	}
	return specs, nil
}
