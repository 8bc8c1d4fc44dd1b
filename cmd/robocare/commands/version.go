package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/cmd/robocare/internal/build"
	"github.com/haivivi/robocare/pkg/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatOutput != "" || queryOutput != "" {
			opts, err := outputOptions(cli.FormatYAML)
			if err != nil {
				return err
			}
			return cli.Output(build.Get(), opts)
		}
		fmt.Println(build.String())
		if IsVerbose() {
			if cfg, err := GetConfig(); err == nil {
				fmt.Printf("  config: %s\n", cfg.Dir)
			} else {
				fmt.Printf("  config: (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
