// Package recallcmder is the root of the recall CLI.
package recallcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/recall/cmd/recall/auth"
	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	dbpathcmder "github.com/papercomputeco/recall/cmd/recall/dbpath"
	initcmder "github.com/papercomputeco/recall/cmd/recall/init"
	recordingcmder "github.com/papercomputeco/recall/cmd/recall/recording"
	reprocesscmder "github.com/papercomputeco/recall/cmd/recall/reprocess"
	searchcmder "github.com/papercomputeco/recall/cmd/recall/search"
	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	versioncmder "github.com/papercomputeco/recall/cmd/version"
)

const recallLongDesc string = `Recall continuously captures your screen and makes it searchable.

Changed frames are read with OCR and a vision model, embedded, and stored
as timestamped entries you can search by meaning.

Run the capture loop and API with:
  recall serve

Then query and control it with:
  recall search "what was that error"
  recall recording pause|resume|status|stats
  recall reprocess`

const recallShortDesc string = "Recall - continuous screen capture and semantic search"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "recall",
		Short:        recallShortDesc,
		Long:         recallLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .recall/ directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(recordingcmder.NewRecordingCmd())
	cmd.AddCommand(reprocesscmder.NewReprocessCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(dbpathcmder.NewDBPathCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
