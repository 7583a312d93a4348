// ABOUTME: Entry point for the Resonate recorder
// ABOUTME: Cobra root command, shared flags and config loading
package main

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/internal/config"
	"github.com/Resonate-Protocol/resonate-recorder/internal/logging"
	"github.com/Resonate-Protocol/resonate-recorder/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "resonate-recorder",
	Short: "Capture, transcode and archive audio streams",
	Long: `Resonate Recorder plays an audio source through a capture tap, writes
WAV captures on demand and transcodes them to Opus or Vorbis.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", version.Product, version.Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file path (TOML)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.String("log-file", "", "Also log to this file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTranscodeCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newRemoteCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given and applies flag overrides
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every explicitly set flag onto cfg. Flags a command
// does not define are skipped.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	setString := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}
	setFloat := func(name string, dst *float64) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetFloat64(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetBool(name)
		}
	}

	setString("log-level", &cfg.Logging.Level)
	setString("log-format", &cfg.Logging.Format)
	setString("log-file", &cfg.Logging.File)

	setString("dir", &cfg.Capture.Dir)
	setString("prefix", &cfg.Capture.Prefix)

	setString("codec", &cfg.Transcode.Codec)
	setInt("bitrate", &cfg.Transcode.Bitrate)
	setFloat("quality", &cfg.Transcode.Quality)
	setString("ffmpeg", &cfg.Transcode.FFmpeg)
	setBool("transcode", &cfg.Transcode.AutoTranscode)

	setString("audio", &cfg.Playback.Source)
	setString("output", &cfg.Playback.Output)
	setInt("volume", &cfg.Playback.Volume)
	setBool("loop", &cfg.Playback.Loop)

	setString("addr", &cfg.Server.Addr)
	setString("name", &cfg.Server.Name)
	if fs.Changed("no-mdns") && err == nil {
		var off bool
		off, err = fs.GetBool("no-mdns")
		cfg.Server.MDNS = !off
	}

	setBool("archive", &cfg.Archive.Enabled)
	setString("bucket", &cfg.Archive.Bucket)

	if err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	return nil
}

// newLogger builds the process logger. fileOnly keeps stdout for a TUI.
func newLogger(cfg config.Config, fileOnly bool) (*zap.Logger, func(), error) {
	return logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		File:     cfg.Logging.File,
		FileOnly: fileOnly,
	})
}
