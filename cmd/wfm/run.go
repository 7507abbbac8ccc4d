package wfm

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhoupc/wechat-file-manager/internal/wfm"
)

var watchMode bool

func init() {
	runCmd.Flags().BoolVar(&watchMode, "watch", false, "keep watching the source tree and rerun on changes")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "scan for new files and deduplicate them into the archive",
	Run:   runRun,
}

func runRun(cmd *cobra.Command, args []string) {
	m, err := wfm.New(ConfigFile)
	if err != nil {
		log.Err(err).Msg("load configuration failed")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchMode {
		if err := m.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Err(err).Msg("watch failed")
		}
		return
	}

	if _, err := m.RunOnce(ctx); err != nil {
		log.Err(err).Msg("run failed")
	}
}
