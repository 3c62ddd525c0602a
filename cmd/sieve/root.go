package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sieve/internal/client"
	"sieve/internal/constants"
	"sieve/internal/logger"
)

const envPrefix = "SIEVE"

type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "sieve",
		Short: "Edit, check and publish filter lists",
		Long: "sieve works on JSON filter lists: edit them in the terminal, compile them to CEL, " +
			"evaluate them locally and sync them with the management service.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.String("api-url", constants.DefaultManagementBaseURL, "Management service base URL (SIEVE_API_URL)")
	flags.String("user", "", "User recorded in the audit log (SIEVE_USER)")
	flags.String("reason", "", "Change reason recorded in the audit log (SIEVE_REASON)")
	flags.String("log-level", "warn", "Log level for HTTP retries (SIEVE_LOG_LEVEL)")
	flags.String("env-file", ".env", "Optional dotenv file read before SIEVE_* variables")

	root.AddCommand(
		c.editCmd(),
		c.validateCmd(),
		c.evalCmd(),
		c.pullCmd(),
		c.pushCmd(),
		c.examplesCmd(),
	)
	return root
}

// setup loads the dotenv file, then layers SIEVE_* variables under the flags.
// A missing dotenv file is not an error.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	return nil
}

func (c *cli) client() (*client.Client, error) {
	log, err := logger.NewWithFormat(c.v.GetString("log-level"), logger.FormatConsole)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return client.New(c.v.GetString("api-url"),
		client.WithIdentity(c.v.GetString("user"), c.v.GetString("reason")),
		client.WithLogger(log),
	), nil
}
