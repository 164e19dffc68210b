package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/davidahmann/contextos/core/metrics"
	"github.com/davidahmann/contextos/core/projectconfig"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
	"github.com/davidahmann/contextos/core/sign"
	"github.com/davidahmann/contextos/core/store"
	"github.com/davidahmann/contextos/core/views"
)

type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	jsonOutput bool
	verbose    bool
	exitCode   int
	env        *environment
}

// environment is opened on first use so that commands without store access
// (validate, keys, version) never touch the record store.
type environment struct {
	config  projectconfig.Config
	logger  *slog.Logger
	store   store.Store
	views   []schemaview.Definition
	metrics *metrics.Recorder
}

func (c *cli) environment() (*environment, error) {
	if c.env != nil {
		return c.env, nil
	}
	configuration, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(c.stderr, configuration.Logging, c.verbose)
	definitions, err := views.Load(configuration.Views.Path)
	if err != nil {
		return nil, err
	}
	recordStore, err := store.Open(store.Options{
		Backend:    configuration.Store.Backend,
		Dir:        configuration.Store.Dir,
		SQLitePath: configuration.Store.SQLitePath,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	c.env = &environment{
		config:  configuration,
		logger:  logger,
		store:   recordStore,
		views:   definitions,
		metrics: metrics.NewRecorder(),
	}
	logger.Debug("environment ready", "store_backend", configuration.Store.Backend, "views", len(definitions))
	return c.env, nil
}

func (c *cli) loadConfig() (projectconfig.Config, error) {
	path := strings.TrimSpace(c.configPath)
	allowMissing := path == ""
	if path == "" {
		path = projectconfig.DefaultPath
	}
	configuration, err := projectconfig.Load(path, allowMissing)
	if err != nil {
		return projectconfig.Config{}, invalidInput(err, "invalid_config")
	}
	return configuration, nil
}

func (c *cli) logger() *slog.Logger {
	if c.env != nil {
		return c.env.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *cli) close() {
	if c.env == nil {
		return
	}
	if err := c.env.metrics.WriteTextfile(c.env.config.Metrics.Textfile); err != nil {
		c.env.logger.Warn("metrics textfile not written", "path", c.env.config.Metrics.Textfile, "error", err)
	}
	if err := c.env.store.Close(); err != nil {
		c.env.logger.Warn("store close failed", "error", err)
	}
}

func newLogger(w io.Writer, defaults projectconfig.LoggingDefaults, verbose bool) *slog.Logger {
	level := defaults.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	if defaults.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func (e *environment) signingKeys() sign.KeyConfig {
	return sign.KeyConfig{
		Mode:           sign.KeyMode(e.config.Signing.KeyMode),
		PrivateKeyPath: e.config.Signing.PrivateKey,
		PublicKeyPath:  e.config.Signing.PublicKey,
		PrivateKeyEnv:  e.config.Signing.PrivateKeyEnv,
		PublicKeyEnv:   e.config.Signing.PublicKeyEnv,
	}
}

func (e *environment) lookupView(id string) (schemaview.Definition, error) {
	return views.Find(e.views, id)
}
