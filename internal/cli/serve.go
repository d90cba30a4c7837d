package cli

import (
	"github.com/spf13/cobra"

	"github.com/sakif/portfolio/internal/app"
)

var (
	serveShare bool
	serveTUI   bool
	serveAddr  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Present the starred journal documents",
	Long: `Present the starred journal documents as a slideshow.

The slideshow is controlled from the terminal viewer and from the local
HTTP API. With --share the session is opened to others: they join with
"portfolio join <url>" and see every slide, edit and comment live.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveShare, "share", false, "Let others join this session")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Draw the terminal viewer (default: when stdout is a terminal)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: :<server.port>)")
}

// runServe starts a solo or hosting session.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode := app.Solo
	if serveShare {
		mode = app.Host
	}
	return runSession(cmd, sessionRun{
		cfg:     cfg,
		opts:    app.Options{Mode: mode, Addr: serveAddr},
		withTUI: useTUI(cmd, serveTUI),
	})
}
