package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/shelf/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand(config.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}

type application struct {
	viper   *viper.Viper
	cfgFile string
}

func newRootCommand(configViper *viper.Viper) *cobra.Command {
	app := &application{viper: configViper}

	rootCmd := &cobra.Command{
		Use:          "shelf",
		Short:        "Local document library",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	}

	app.setupFlags(rootCmd)
	rootCmd.AddCommand(
		app.newServeCommand(),
		app.newStatusCommand(),
		app.newDocumentsCommand(),
		app.newFoldersCommand(),
	)
	return rootCmd
}

func (app *application) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString(config.KeyHTTPAddress), "HTTP listen address")
	flags.StringSlice("allowed-origins", defaults.GetStringSlice(config.KeyAllowedOrigins), "Origins allowed to call the HTTP API")
	flags.String("database-path", defaults.GetString(config.KeyDatabasePath), "SQLite database path")
	flags.String("log-level", defaults.GetString(config.KeyLogLevel), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString(config.KeyLogFormat), "Log format (json, console)")
	flags.String("max-upload-size", defaults.GetString(config.KeyMaxUploadSize), "Largest accepted upload, e.g. 100MB")

	app.bindFlag(cmd, config.KeyHTTPAddress, "http-address")
	app.bindFlag(cmd, config.KeyAllowedOrigins, "allowed-origins")
	app.bindFlag(cmd, config.KeyDatabasePath, "database-path")
	app.bindFlag(cmd, config.KeyLogLevel, "log-level")
	app.bindFlag(cmd, config.KeyLogFormat, "log-format")
	app.bindFlag(cmd, config.KeyMaxUploadSize, "max-upload-size")
}

func (app *application) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := app.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (app *application) initConfig() error {
	if app.cfgFile != "" {
		app.viper.SetConfigFile(app.cfgFile)
	} else {
		app.viper.SetConfigName("shelf")
		app.viper.AddConfigPath(".")
	}

	if err := app.viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if app.cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}
