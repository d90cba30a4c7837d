package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sakif/portfolio/internal/app"
	"github.com/sakif/portfolio/internal/service"
)

var (
	joinNick       string
	joinPassphrase string
	joinTUI        bool
	joinAddr       string
)

var joinCmd = &cobra.Command{
	Use:   "join <host-url>",
	Short: "Join someone else's shared session",
	Long: `Join a session started with "portfolio serve --share".

Your own slides are put away while you are joined; you see the host's
slides and everyone's edits. Missing nickname or passphrase are asked for
when running in a terminal. If the host cannot be reached the session goes
on alone.`,
	Example: `  portfolio join http://192.168.1.20:8080
  portfolio join http://ana.local:8080 --nick bob --passphrase sesame`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&joinNick, "nick", "n", "", "Nickname shown to the others (default: profile.nickname)")
	joinCmd.Flags().StringVarP(&joinPassphrase, "passphrase", "p", "", "Passphrase of the share")
	joinCmd.Flags().BoolVar(&joinTUI, "tui", false, "Draw the terminal viewer (default: when stdout is a terminal)")
	joinCmd.Flags().StringVar(&joinAddr, "addr", "127.0.0.1:0", "Listen address of the local control API")
}

// runJoin starts a guest session.
func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	nick := joinNick
	passphrase := joinPassphrase
	if isTerminal(os.Stdin) && (!cmd.Flags().Changed("nick") || !cmd.Flags().Changed("passphrase")) {
		if nick == "" {
			nick = cfg.Profile.Nickname
		}
		if err := promptJoin(&nick, &passphrase, !cmd.Flags().Changed("passphrase")); err != nil {
			return err
		}
	}
	if nick != "" {
		cfg.Profile.Nickname = nick
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return runSession(cmd, sessionRun{
		cfg: cfg,
		opts: app.Options{
			Mode:       app.Guest,
			Addr:       joinAddr,
			HostURL:    args[0],
			Passphrase: passphrase,
		},
		withTUI: useTUI(cmd, joinTUI),
	})
}

// promptJoin asks for the nickname and, when askPassphrase is set, the
// passphrase.
func promptJoin(nick, passphrase *string, askPassphrase bool) error {
	fields := []huh.Field{
		huh.NewInput().
			Title("Nickname").
			Description("Shown next to your comments").
			CharLimit(service.MaxNickLength).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("a nickname is required")
				}
				return nil
			}).
			Value(nick),
	}
	if askPassphrase {
		fields = append(fields, huh.NewInput().
			Title("Passphrase").
			Description("Leave empty if the share is open").
			EchoMode(huh.EchoModePassword).
			Value(passphrase))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("join cancelled: %w", err)
	}
	return nil
}
