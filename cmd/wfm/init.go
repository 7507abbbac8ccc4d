package wfm

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhoupc/wechat-file-manager/internal/wfm"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create the default configuration document",
	Run:   runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	path, err := wfm.Init(ConfigFile)
	if err != nil {
		log.Err(err).Msg("init failed")
		return
	}
	log.Info().Str("path", path).Msg("configuration ready, edit paths before the first run")
}
