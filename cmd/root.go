// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/claimgate/internal/config"
	"github.com/xkilldash9x/claimgate/internal/observability"
	"go.uber.org/zap"
)

type ctxKey int

const configKey ctxKey = iota

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "claimgate/skip-config"

// storeOnlyAnnotation marks commands that validate only the database section.
const storeOnlyAnnotation = "claimgate/store-only"

var cfgFile string

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// invocation is the validated positional input of the root command.
type invocation struct {
	Identifier  string `label:"identifier" validate:"required,number"`
	DisplayName string `label:"display name" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("label") })
	return v
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claimgate <identifier> <displayName>",
		Short: "Validate a game account identifier and hand valid ones to the claim workflow.",
		Long: `claimgate drives a headless browser against the configured shop page to check
whether an identifier belongs to a real account. Invalid identifiers are
deregistered; valid ones are handed to the claim workflow, which runs detached.`,
		Version:       Version,
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "claimgate"})
				return nil
			}

			v := viper.New()
			config.SetDefaults(v)

			// 1. Initialize configuration loading
			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Create and validate the configuration object.
			load := config.NewConfigFromViper
			if cmd.Annotations[storeOnlyAnnotation] == "true" {
				load = config.NewStoreConfigFromViper
			}
			cfg, err := load(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "claimgate"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Initialize the logger with the loaded config.
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting claimgate", zap.String("version", Version))

			// 4. Store the validated config in the command's context for subcommands.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: runValidate,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("url", "", "target shop page URL (overrides target.url)")
	cmd.PersistentFlags().Bool("headless", true, "run the browser headless (overrides browser.headless)")
	cmd.PersistentFlags().String("log-level", "", "log level (overrides logger.level)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newSuperviseCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with ctx and reports failures on stderr.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	if logger := observability.GetLogger(); logger != nil {
		logger.Error("Command execution failed", zap.Error(err))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// validateArgs enforces exactly two positional arguments with an all-digit identifier.
func validateArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return err
	}
	inv := invocation{Identifier: strings.TrimSpace(args[0]), DisplayName: strings.TrimSpace(args[1])}
	if err := validate.Struct(inv); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s must be %s", fe.Field(), describeTag(fe.Tag())))
			}
			return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func describeTag(tag string) string {
	switch tag {
	case "number":
		return "all digits"
	case "required":
		return "non-empty"
	default:
		return tag
	}
}

// initializeConfig reads in the config file, ENV variables and bound flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	for key, name := range map[string]string{
		"target.url":       "url",
		"browser.headless": "headless",
		"logger.level":     "log-level",
	} {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
