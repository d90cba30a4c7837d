package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/portfolio/internal/config"
)

var configForce bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the configuration file",
	Long: `Print the JSON Schema of portfolio.toml.

Editors with TOML schema support (e.g. Taplo) use it for completion and
validation.`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after defaults and PORTFOLIO_* environment overrides.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if configForce {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(configPath, flags, 0o600)
	if os.IsExist(err) {
		return fmt.Errorf("configuration file already exists: %s (use --force)", configPath)
	}
	if err != nil {
		return fmt.Errorf("creating %s: %w", configPath, err)
	}
	defer f.Close()

	if err := config.Encode(f, config.Default()); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Share.Secret != "" {
		cfg.Share.Secret = "********"
	}
	if cfg.Share.Passphrase != "" {
		cfg.Share.Passphrase = "********"
	}
	return config.Encode(cmd.OutOrStdout(), cfg)
}
