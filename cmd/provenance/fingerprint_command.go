package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"provenance/internal/config"
	"provenance/internal/fingerprint"
)

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "fingerprint <file>",
		Short:       "Print a file's content fingerprint without contacting the registry",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()
			fp, err := fingerprint.ComputeReader(file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fp.String())
			return nil
		},
	}
}
