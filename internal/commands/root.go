package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/memocache/internal/app"
	"github.com/dotcommander/memocache/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "memocache",
		Short:         "Bounded TTL cache and rate limiter (library demo harness)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.EnsureConfigDir()
		},
	}

	root.Flags().BoolP("version", "v", false, "version for memocache")

	root.AddCommand(NewDemoCmd())

	err := root.Execute()
	if err != nil {
		slog.Error("command failed", "error", err.Error())
		_ = output.PrintError(err)
	}
	return err
}
