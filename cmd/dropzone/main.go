package main

import (
	"fmt"
	"os"

	"github.com/Renedz21/client/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// options 是各子命令共享的全局参数，未显式指定时取自配置。
type options struct {
	cfg      *config.Config
	apiBase  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "dropzone",
		Short: "Upload images and browse the uploaded gallery",
		Long: `dropzone validates local image files against the configured accept
list, size limit and file count, uploads them concurrently with per-file
progress, and lists the images already stored by the remote API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.apiBase != "" {
				cfg.APIBaseURL = opts.apiBase
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiBase, "api", "", "API base URL (default from API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		uploadCmd(opts),
		galleryCmd(opts),
	)
	return rootCmd
}
