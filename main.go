// Package main provides the hostspeech CLI: it synthesizes a line of text
// through a speech service and plays it locally with speechmark callbacks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crowers/amazon-sumerian-hosts/internal/audio"
	"github.com/crowers/amazon-sumerian-hosts/internal/synth"
	"github.com/crowers/amazon-sumerian-hosts/pkg/speech"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	endpoint   string
	apiKey     string
	voice      string
	hostName   string
	marksPath  string
	markOffset time.Duration
	volume     float64
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "hostspeech [TEXT]",
		Short: "Speak text through a synthesis service with lip-sync speechmarks",
		Long: "\nSynthesize TEXT with a speech service, play it on the local audio " +
			"device, and emit speechmark timing events as the utterance plays.",
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadOptions(cmd)
		},
		RunE: execute,
	}
)

// envConfig is the environment override surface.
type envConfig struct {
	Endpoint string `env:"HOSTSPEECH_ENDPOINT"`
	APIKey   string `env:"HOSTSPEECH_API_KEY"`
	Voice    string `env:"HOSTSPEECH_VOICE"`
	Debug    bool   `env:"HOSTSPEECH_DEBUG"`
}

// loadOptions merges config file, environment and flag values.
func loadOptions(cmd *cobra.Command) error {
	endpoint = viper.GetString("endpoint")
	apiKey = viper.GetString("api_key")
	voice = viper.GetString("voice")
	hostName = viper.GetString("host")
	volume = viper.GetFloat64("volume")
	debug = viper.GetBool("debug")

	ec, err := env.ParseAs[envConfig]()
	if err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	if ec.Endpoint != "" && !cmd.Flags().Changed("endpoint") {
		endpoint = ec.Endpoint
	}
	if ec.APIKey != "" && !cmd.Flags().Changed("api-key") {
		apiKey = ec.APIKey
	}
	if ec.Voice != "" && !cmd.Flags().Changed("voice") {
		voice = ec.Voice
	}
	if ec.Debug {
		debug = true
	}

	if endpoint == "" {
		return errors.New("no synthesis endpoint configured (flag --endpoint, env HOSTSPEECH_ENDPOINT, or config file)")
	}
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %.2f", volume)
	}
	return nil
}

// loadMarks reads a speechmark JSON document from disk.
func loadMarks(path string) ([]speech.Speechmark, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read speechmarks: %w", err)
	}
	marks, err := speech.ParseMarks(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse speechmarks: %w", err)
	}
	return marks, nil
}

func execute(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	marks, err := loadMarks(marksPath)
	if err != nil {
		return err
	}

	device := audio.NewDevice(audio.Config{Logger: logger})
	gate := speech.NewGate(device, logger)

	client, err := synth.NewClient(synth.Config{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Logger:   logger,
	}, func(data []byte, cfg speech.ResourceConfig) (speech.Resource, error) {
		return device.NewResource(data, cfg)
	})
	if err != nil {
		return err
	}

	ctrl, err := speech.NewController(gate, client, speech.ControllerConfig{
		Name:     hostName,
		Platform: speech.DetectPlatform(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	ctrl.SetVolume(volume)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fut := ctrl.Play(args[0], speech.SpeechConfig{
		Voice:      voice,
		Marks:      marks,
		MarkOffset: markOffset,
		OnMark: func(m speech.Speechmark) {
			logger.Info("speechmark", "time", m.Time, "type", m.Type, "value", m.Value)
		},
	})

	if _, err := fut.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			ctrl.StopSpeech()
			return nil
		}
		return err
	}
	logger.Info("utterance finished", "host", ctrl.Name())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "synthesis service URL")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "synthesis service API key")
	rootCmd.Flags().StringVar(&voice, "voice", "", "voice to synthesize with")
	rootCmd.Flags().StringVar(&hostName, "host", "", "host identifier used in errors and logs")
	rootCmd.Flags().StringVarP(&marksPath, "marks", "m", "", "path to a speechmark JSON document")
	rootCmd.Flags().DurationVar(&markOffset, "mark-offset", 0, "shift speechmarks relative to the audio (negative pre-rolls the timeline)")
	rootCmd.Flags().Float64VarP(&volume, "volume", "v", 1, "playback volume (0.0 to 1.0)")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	_ = viper.BindPFlag("endpoint", rootCmd.Flags().Lookup("endpoint"))
	_ = viper.BindPFlag("api_key", rootCmd.Flags().Lookup("api-key"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("volume", rootCmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))

	viper.SetDefault("volume", 1.0)

	rootCmd.AddCommand(configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	home, err := homedir.Dir()
	if err != nil {
		fmt.Println("Could not locate home directory.")
		os.Exit(1)
	}

	dirs := []string{filepath.Join(home, ".config", "hostspeech")}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "hostspeech")}, dirs...)
	}
	if c := os.Getenv("HOSTSPEECH_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("hostspeech")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("hostspeech")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}
	configFile = filepath.Join(dirs[0], "hostspeech.yml")
}
