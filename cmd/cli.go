// SPDX-License-Identifier: MIT
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"signalmon/internal/config"
	"signalmon/pkg/build"
)

// Commands selected on the command line.
const (
	CommandMonitor = "monitor"
	CommandPorts   = "ports"
)

// Options is the parsed command line. Flags the user did not set leave the
// loaded configuration untouched.
type Options struct {
	Command    string // "" when cobra only printed help or the version
	ConfigPath string
	Replay     string // capture file replayed instead of opening the port
	Pick       bool   // ports: choose a port interactively, then monitor

	port        string
	baud        int
	spectrum    bool
	channel     int
	fftSize     int
	mode        string
	window      string
	fill        string
	wsAddr      string
	udpTarget   string
	sqlitePath  string
	wavPath     string
	wavChannel  int
	logEvents   bool
	verbose     bool
	startMarker string

	changed map[string]bool
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.Get()
	defaults := config.Default()
	options := &Options{changed: make(map[string]bool)}

	record := func(cmd *cobra.Command) {
		cmd.Flags().Visit(func(f *pflag.Flag) { options.changed[f.Name] = true })
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandMonitor
			record(cmd)
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandPorts
			record(cmd)
			return nil
		},
	}
	portsCmd.Flags().BoolVar(&options.Pick, "pick", false,
		"Choose a port and baud rate interactively, then start monitoring")
	rootCmd.AddCommand(portsCmd)

	flags := rootCmd.PersistentFlags()

	// Input
	flags.StringVarP(&options.ConfigPath, "config", "f", "",
		"Configuration file. Defaults to signalmon.yaml or config.yaml when present")
	flags.StringVarP(&options.port, "port", "p", defaults.Serial.Port,
		"Serial device, e.g. /dev/ttyUSB0 or COM3. Use 'ports' to list them")
	flags.IntVarP(&options.baud, "baud", "b", defaults.Serial.BaudRate,
		"Baud rate")
	flags.StringVar(&options.Replay, "replay", "",
		"Replay a captured stream from this file instead of reading the port")
	flags.StringVar(&options.startMarker, "start-marker", defaults.Stream.StartMarker,
		"Discard input until this marker appears. Empty disables")

	// Spectrum
	flags.BoolVarP(&options.spectrum, "spectrum", "s", defaults.Spectrum.Enabled,
		"Derive a spectral channel")
	flags.IntVar(&options.channel, "spectrum-channel", defaults.Spectrum.SourceChannel,
		"Channel index to analyze")
	flags.IntVar(&options.fftSize, "fft", defaults.Spectrum.FFTSize,
		"FFT size, a power of two")
	flags.StringVar(&options.mode, "mode", defaults.Spectrum.Mode,
		"Spectral mode: amplitude or phase")
	flags.StringVar(&options.window, "window", defaults.Spectrum.Window,
		"Window function: rectangular, hann, hamming, blackman, ...")
	flags.StringVar(&options.fill, "fill", defaults.Spectrum.Fill,
		"Short window policy: wait or pad")

	// Sinks
	flags.BoolVar(&options.logEvents, "log-events", defaults.Transport.Log,
		"Log every event")
	flags.StringVar(&options.wsAddr, "ws", "",
		"Serve events as JSON over WebSocket on this address, e.g. :8080")
	flags.StringVar(&options.udpTarget, "udp", "",
		"Send batches as UDP datagrams to this address, e.g. 127.0.0.1:9090")
	flags.StringVar(&options.sqlitePath, "db", "",
		"Record the session to this SQLite database")
	flags.StringVarP(&options.wavPath, "wav", "w", "",
		"Render one channel to this WAV file")
	flags.IntVar(&options.wavChannel, "wav-channel", defaults.Recording.WAVChannel,
		"Channel index rendered to the WAV file")

	// Debug
	flags.BoolVarP(&options.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// Changed reports whether the named flag was set.
func (o *Options) Changed(name string) bool {
	return o.changed[name]
}

// Apply overrides cfg with every flag the user set.
func (o *Options) Apply(cfg *config.Config) {
	set := func(name string, apply func()) {
		if o.changed[name] {
			apply()
		}
	}

	set("port", func() { cfg.Serial.Port = o.port })
	set("baud", func() { cfg.Serial.BaudRate = o.baud })
	set("start-marker", func() { cfg.Stream.StartMarker = o.startMarker })

	set("spectrum", func() { cfg.Spectrum.Enabled = o.spectrum })
	set("spectrum-channel", func() { cfg.Spectrum.SourceChannel = o.channel })
	set("fft", func() { cfg.Spectrum.FFTSize = o.fftSize })
	set("mode", func() { cfg.Spectrum.Mode = o.mode })
	set("window", func() { cfg.Spectrum.Window = o.window })
	set("fill", func() { cfg.Spectrum.Fill = o.fill })

	set("log-events", func() { cfg.Transport.Log = o.logEvents })
	set("ws", func() { cfg.Transport.WebSocketEnabled, cfg.Transport.WebSocketAddr = true, o.wsAddr })
	set("udp", func() { cfg.Transport.UDPEnabled, cfg.Transport.UDPTargetAddress = true, o.udpTarget })
	set("db", func() { cfg.Recording.SQLiteEnabled, cfg.Recording.SQLitePath = true, o.sqlitePath })
	set("wav", func() { cfg.Recording.WAVEnabled, cfg.Recording.WAVPath = true, o.wavPath })
	set("wav-channel", func() { cfg.Recording.WAVChannel = o.wavChannel })

	set("verbose", func() { cfg.Debug = o.verbose })
}
