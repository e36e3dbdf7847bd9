// Package main provides the scribe service entry point.
// scribe ingests meeting audio chunks, assembles transcripts, and
// produces shareable summaries.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/minuteworks/scribe/cmd"
	"github.com/minuteworks/scribe/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Meeting transcription and summary pipeline",
	Long: `scribe is the meeting processing pipeline service.

It accepts meeting audio in sequenced chunks, transcribes them in
order behind a watermark, summarizes completed transcripts through a
retrying job queue, and issues immutable public share links for
finished summaries.

COMMON WORKFLOWS:
  Run the service:   scribe serve
  Apply migrations:  scribe db migrate
  Check health:      scribe status

Configuration is read from scribe.yaml (or $SCRIBE_CONFIG), overridden
by SCRIBE_* and DB_* environment variables. A .env file in the working
directory is loaded at startup when present.`,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build time of the scribe binary.`,
	Run: func(c *cobra.Command, args []string) {
		fmt.Printf("scribe %s\n", buildinfo.String())
	},
}

func main() {
	// Optional; real deployments set the environment directly.
	_ = godotenv.Load()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.NewServeCommand())
	rootCmd.AddCommand(cmd.NewDbCommand())
	rootCmd.AddCommand(cmd.NewStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
