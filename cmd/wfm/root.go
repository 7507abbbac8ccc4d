package wfm

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Debug      bool
	ConfigFile string
)

func init() {
	// windows only
	cobra.MousetrapHelpText = ""

	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "debug")
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", "", "config file (default ~/.wechat-file-manager/config.yaml)")
	rootCmd.PersistentPreRun = initLog
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Err(err).Msg("command execution failed")
	}
}

var rootCmd = &cobra.Command{
	Use:     "wfm",
	Short:   "deduplicate WeChat media files into a centralized archive",
	Long:    `wfm scans the WeChat cache for new media files, keeps one physical copy per unique content under a storage root, and replaces duplicates with symbolic links.`,
	Example: `wfm run`,
	Args:    cobra.MinimumNArgs(0),
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}
