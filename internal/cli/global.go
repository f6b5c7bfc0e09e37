package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/report-autofill/internal/bootstrap"
	"github.com/cuongbtq/report-autofill/internal/config"
	"github.com/cuongbtq/report-autofill/shared/logger"
)

const (
	tableFormat = "table"
	jsonFormat  = "json"
	yamlFormat  = "yaml"

	configPathEnv     = "REPORTCTL_CONFIG_PATH"
	defaultConfigPath = "configs/reportctl/config.yaml"
)

var legalOutputTypes = []string{tableFormat, jsonFormat, yamlFormat}

type GlobalOptions struct {
	ConfigPath string
	DBPath     string
	Output     string
	Verbose    bool

	configExplicit bool
}

func DefaultGlobalOptions() GlobalOptions {
	configPath := os.Getenv(configPathEnv)
	return GlobalOptions{
		ConfigPath:     configPath,
		Output:         tableFormat,
		configExplicit: configPath != "",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigPath, "config", "c", o.ConfigPath, fmt.Sprintf("Path to configuration file (default %s, env %s)", defaultConfigPath, configPathEnv))
	fs.StringVar(&o.DBPath, "db", o.DBPath, "SQLite database path, overrides the configured database")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "Log at debug level to stderr")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("config") {
		o.configExplicit = true
	}
	if o.ConfigPath == "" {
		o.ConfigPath = defaultConfigPath
	}
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if !slices.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// LoadConfig reads the configuration file. A missing default file yields
// the built-in defaults; a missing explicit file is an error.
func (o *GlobalOptions) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		if o.configExplicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}

	if o.DBPath != "" {
		cfg.Database.Driver = "sqlite3"
		cfg.Database.Path = o.DBPath
	}

	if err := cfg.ValidateDatabaseConfig(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session is the runtime a command works against
type session struct {
	cfg      *config.Config
	logger   *logger.Logger
	services *bootstrap.Services
}

func (s *session) Close() {
	s.services.Close()
	s.logger.Close()
}

// Open loads the configuration, a stderr logger and the stores
func (o *GlobalOptions) Open() (*session, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	appLogger, err := logger.New(&logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	services, err := bootstrap.InitStores(&cfg.Database, appLogger.Logger)
	if err != nil {
		appLogger.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: appLogger, services: services}, nil
}

// printStructured writes v as JSON or YAML. YAML keys follow the JSON tags.
func printStructured(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}

	if format == jsonFormat {
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	_, err = w.Write(out)
	return err
}
