// root.go viper root command code
package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mayaflux/mayaflux-go/cmd/devices"
	"github.com/mayaflux/mayaflux-go/cmd/realtime"
	"github.com/mayaflux/mayaflux-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mayaflux",
		Short: "MayaFlux real-time signal engine CLI",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		realtime.Command(settings),
		devices.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags binds the global flags into viper so config-file values and
// flags resolve through one surface.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	flags := cmd.PersistentFlags()

	flags.Uint32Var(&settings.Stream.SampleRate, "samplerate", settings.Stream.SampleRate, "Stream sample rate in Hz")
	flags.Uint32Var(&settings.Stream.BufferSize, "buffersize", settings.Stream.BufferSize, "Samples per processing block")
	flags.Uint32Var(&settings.Stream.Output.Channels, "channels", settings.Stream.Output.Channels, "Output channel count")
	flags.BoolVar(&settings.Main.Debug, "debug", settings.Main.Debug, "Enable debug logging")

	if err := viper.BindPFlag("stream.sample_rate", flags.Lookup("samplerate")); err != nil {
		return err
	}
	if err := viper.BindPFlag("stream.buffer_size", flags.Lookup("buffersize")); err != nil {
		return err
	}
	if err := viper.BindPFlag("stream.output.channels", flags.Lookup("channels")); err != nil {
		return err
	}
	return viper.BindPFlag("main.debug", flags.Lookup("debug"))
}
