// Package devices implements the device enumeration command.
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mayaflux/mayaflux-go/internal/backend"
	"github.com/mayaflux/mayaflux-go/internal/conf"
)

// Command returns the devices subcommand: list audio endpoints.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := backend.NewMalgoBackend()
			if err != nil {
				return fmt.Errorf("audio backend init failed: %w", err)
			}
			defer func() { _ = be.Cleanup() }()

			outputs, err := be.OutputDevices()
			if err != nil {
				return err
			}
			fmt.Println("Output devices:")
			for _, d := range outputs {
				marker := " "
				if d.IsDefaultOutput {
					marker = "*"
				}
				fmt.Printf("  %s [%d] %s\n", marker, d.ID, d.Name)
			}

			inputs, err := be.InputDevices()
			if err != nil {
				return err
			}
			fmt.Println("Input devices:")
			for _, d := range inputs {
				marker := " "
				if d.IsDefaultInput {
					marker = "*"
				}
				fmt.Printf("  %s [%d] %s\n", marker, d.ID, d.Name)
			}

			return nil
		},
	}
}
