package wfm

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhoupc/wechat-file-manager/internal/wfm"
)

var reindex bool

func init() {
	statusCmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild the archive index from the storage root first")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show configuration and archive statistics",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	m, err := wfm.New(ConfigFile)
	if err != nil {
		log.Err(err).Msg("load configuration failed")
		return
	}

	if reindex {
		added, err := m.Reindex()
		if err != nil {
			log.Err(err).Msg("reindex failed")
			return
		}
		log.Info().Int("added", added).Msg("reindex finished")
	}

	report, err := m.Status()
	if err != nil {
		log.Err(err).Msg("status failed")
		return
	}

	fmt.Printf("config:   %s\n", report.ConfigFile)
	fmt.Printf("source:   %s\n", report.SourceRoot)
	fmt.Printf("storage:  %s (%s)\n", report.StorageRoot, report.StorageUsage)
	fmt.Printf("entries:  %d\n", report.Entries)
	fmt.Printf("last run: %s\n", report.LastRun)
	fmt.Printf("mode:     %s\n", modeName(report.Preserve))
}

func modeName(preserve bool) string {
	if preserve {
		return "preserve originals"
	}
	return "link"
}
