package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/portfolio/internal/app"
	"github.com/sakif/portfolio/internal/export"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/service"
)

var (
	exportFormat string

	importTitle       string
	importDescription string
	importStar        bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the starred documents as PDF, ODP or HTML",
	Long: `Export the starred documents without opening the viewer.

The export is stored back into the journal as a new document, the same way
the viewer's export keys do it.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Add files to the journal",
	Long: `Copy files into the journal so they can be presented.

Images get a stored preview. Use --star to put the files on the slideshow
right away.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and edit the journal",
}

var journalListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List journal documents",
	Args:    cobra.NoArgs,
	RunE:    runJournalList,
}

var journalRemoveCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"remove"},
	Short:   "Remove journal documents",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runJournalRemove,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(export.PDF), "Export format: pdf, odp or html")

	importCmd.Flags().StringVar(&importTitle, "title", "", "Title (default: the file name); only with a single file")
	importCmd.Flags().StringVar(&importDescription, "description", "", "Description")
	importCmd.Flags().BoolVar(&importStar, "star", false, "Star the documents")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalRemoveCmd)
}

// withJournal opens a headless session, runs fn on its loop and closes it.
// Edits fn makes to slides are saved on close like in a full session.
func withJournal(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(app.Options{Config: cfg, Headless: true}, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	runErr := a.Do(ctx, func() error { return fn(ctx, a) })
	closeErr := a.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	return withJournal(cmd, func(ctx context.Context, a *app.App) error {
		doc, err := a.Service().Export(ctx, format)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %q as %s (%s)\n", doc.Meta(model.MetaTitle), doc.ID, format.MimeType())
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	if importTitle != "" && len(args) > 1 {
		return fmt.Errorf("--title needs a single file, got %d", len(args))
	}
	return withJournal(cmd, func(ctx context.Context, a *app.App) error {
		for _, path := range args {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			doc, err := a.Service().Import(ctx, abs, service.ImportOptions{
				Title:       importTitle,
				Description: importDescription,
				Star:        importStar,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", doc.ID, doc.Meta(model.MetaTitle))
		}
		return nil
	})
}

func runJournalList(cmd *cobra.Command, args []string) error {
	return withJournal(cmd, func(ctx context.Context, a *app.App) error {
		docs, err := a.Service().List(ctx)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "The journal is empty.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSTAR\tTYPE\tTITLE\tCREATED")
		for _, d := range docs {
			star := ""
			if d.Favorited() {
				star = "*"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.ID, star, d.Meta(model.MetaMimeType), d.Meta(model.MetaTitle),
				d.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	})
}

func runJournalRemove(cmd *cobra.Command, args []string) error {
	return withJournal(cmd, func(ctx context.Context, a *app.App) error {
		for _, id := range args {
			if err := a.Service().Remove(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
		}
		return nil
	})
}
