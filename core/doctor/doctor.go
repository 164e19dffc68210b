// Package doctor inspects a workspace before the first plan: config, views,
// record store and signing keys.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/contextos/core/projectconfig"
	"github.com/davidahmann/contextos/core/sign"
	"github.com/davidahmann/contextos/core/store"
	"github.com/davidahmann/contextos/core/views"
)

const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

type Options struct {
	WorkDir string
	// ConfigPath defaults to projectconfig.DefaultPath under WorkDir; only an
	// explicit path must exist.
	ConfigPath      string
	ProducerVersion string
}

type Result struct {
	SchemaID        string   `json:"schema_id"`
	SchemaVersion   string   `json:"schema_version"`
	CreatedAt       string   `json:"created_at"`
	ProducerVersion string   `json:"producer_version"`
	Status          string   `json:"status"`
	Summary         string   `json:"summary"`
	FixCommands     []string `json:"fix_commands"`
	Checks          []Check  `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
}

func Run(ctx context.Context, opts Options) Result {
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = "."
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}

	checks := []Check{checkWorkDirWritable(workDir)}
	configuration, configCheck := checkConfig(workDir, opts.ConfigPath)
	checks = append(checks, configCheck)
	if configCheck.Status != StatusFail {
		checks = append(checks,
			checkViews(workDir, configuration.Views.Path),
			checkStore(ctx, workDir, configuration.Store),
			checkKeyConfig(workDir, configuration.Signing),
			checkMetricsTextfile(workDir, configuration.Metrics.Textfile),
		)
	}

	failed := 0
	warned := 0
	fixCommands := make([]string, 0, len(checks))
	seenFixes := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case StatusFail:
			failed++
		case StatusWarn:
			warned++
		}
		if check.FixCommand != "" {
			if _, ok := seenFixes[check.FixCommand]; !ok {
				seenFixes[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := StatusPass
	if failed > 0 {
		status = StatusFail
	} else if warned > 0 {
		status = StatusWarn
	}
	sort.Strings(fixCommands)

	return Result{
		SchemaID:        "contextos.doctor.result",
		SchemaVersion:   "1.0.0",
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: producerVersion,
		Status:          status,
		Summary:         fmt.Sprintf("doctor: status=%s failed=%d warned=%d", status, failed, warned),
		FixCommands:     fixCommands,
		Checks:          checks,
	}
}

func checkWorkDirWritable(workDir string) Check {
	info, err := os.Stat(workDir)
	if err != nil {
		return Check{
			Name:       "workdir",
			Status:     StatusFail,
			Message:    fmt.Sprintf("workdir not accessible: %v", err),
			FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(workDir)),
		}
	}
	if !info.IsDir() {
		return Check{Name: "workdir", Status: StatusFail, Message: "workdir is not a directory"}
	}
	testPath := filepath.Join(workDir, ".contextos-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{
			Name:       "workdir",
			Status:     StatusFail,
			Message:    fmt.Sprintf("workdir not writable: %v", err),
			FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(workDir)),
		}
	}
	_ = os.Remove(testPath)
	return Check{Name: "workdir", Status: StatusPass, Message: "workdir is writable"}
}

func checkConfig(workDir, configPath string) (projectconfig.Config, Check) {
	path := strings.TrimSpace(configPath)
	allowMissing := path == ""
	if path == "" {
		path = projectconfig.DefaultPath
	}
	resolved := resolve(workDir, path)
	configuration, err := projectconfig.Load(resolved, allowMissing)
	if err != nil {
		return projectconfig.Config{}, Check{
			Name:    "project_config",
			Status:  StatusFail,
			Message: fmt.Sprintf("project config unusable: %v", err),
		}
	}
	if _, statErr := os.Stat(resolved); statErr != nil {
		return configuration, Check{Name: "project_config", Status: StatusPass, Message: "no project config; using defaults"}
	}
	return configuration, Check{Name: "project_config", Status: StatusPass, Message: "project config loaded from " + path}
}

func checkViews(workDir, viewsPath string) Check {
	path := strings.TrimSpace(viewsPath)
	if path != "" {
		path = resolve(workDir, path)
	}
	definitions, err := views.Load(path)
	if err != nil {
		return Check{
			Name:       "views",
			Status:     StatusFail,
			Message:    fmt.Sprintf("view index invalid: %v", err),
			FixCommand: "contextos validate --schema view <view.json> for each view in views.path",
		}
	}
	ids := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		ids = append(ids, definition.ID)
	}
	source := "built-in views"
	if path != "" {
		source = viewsPath
	}
	return Check{Name: "views", Status: StatusPass, Message: fmt.Sprintf("%d views from %s: %s", len(ids), source, strings.Join(ids, ", "))}
}

func checkStore(ctx context.Context, workDir string, defaults projectconfig.StoreDefaults) Check {
	dir := defaults.Dir
	if strings.TrimSpace(dir) == "" {
		dir = store.DefaultDir
	}
	sqlitePath := defaults.SQLitePath
	if strings.TrimSpace(sqlitePath) != "" {
		sqlitePath = resolve(workDir, sqlitePath)
	}
	recordStore, err := store.Open(store.Options{Backend: defaults.Backend, Dir: resolve(workDir, dir), SQLitePath: sqlitePath})
	if err != nil {
		return Check{
			Name:       "record_store",
			Status:     StatusFail,
			Message:    fmt.Sprintf("record store unavailable: %v", err),
			FixCommand: "set store.backend to file or sqlite in " + projectconfig.DefaultPath,
		}
	}
	defer func() { _ = recordStore.Close() }()
	recipes, err := recordStore.List(ctx, store.Recipes)
	if err != nil {
		return Check{
			Name:    "record_store",
			Status:  StatusFail,
			Message: fmt.Sprintf("record store unreadable: %v", err),
		}
	}
	backend := defaults.Backend
	if backend == "" {
		backend = store.BackendFile
	}
	return Check{Name: "record_store", Status: StatusPass, Message: fmt.Sprintf("%s store readable (%d recipes)", backend, len(recipes))}
}

func checkKeyConfig(workDir string, defaults projectconfig.SigningDefaults) Check {
	cfg := sign.KeyConfig{
		Mode:           sign.KeyMode(defaults.KeyMode),
		PrivateKeyPath: resolveOptional(workDir, defaults.PrivateKey),
		PublicKeyPath:  resolveOptional(workDir, defaults.PublicKey),
		PrivateKeyEnv:  defaults.PrivateKeyEnv,
		PublicKeyEnv:   defaults.PublicKeyEnv,
	}
	keyMode := cfg.Mode
	if keyMode == "" {
		keyMode = sign.ModeProd
	}
	switch keyMode {
	case sign.ModeDev:
		if hasAnyKeySource(cfg) {
			return Check{
				Name:       "key_config",
				Status:     StatusWarn,
				Message:    "dev mode ignores explicit key sources",
				FixCommand: "remove signing key paths or set signing.key_mode: prod",
			}
		}
		return Check{Name: "key_config", Status: StatusPass, Message: "dev key mode is configured"}
	case sign.ModeProd:
		if !hasAnyKeySource(cfg) {
			return Check{
				Name:       "key_config",
				Status:     StatusWarn,
				Message:    "no signing key configured; plan --sign and verify are unavailable",
				FixCommand: "contextos keys init",
			}
		}
		if _, _, err := sign.LoadSigningKey(cfg); err != nil {
			return Check{
				Name:       "key_config",
				Status:     StatusFail,
				Message:    fmt.Sprintf("invalid prod signing key config: %v", err),
				FixCommand: "contextos keys init",
			}
		}
		return Check{Name: "key_config", Status: StatusPass, Message: "prod key configuration is valid"}
	default:
		return Check{
			Name:       "key_config",
			Status:     StatusFail,
			Message:    fmt.Sprintf("unsupported key mode: %s", keyMode),
			FixCommand: "set signing.key_mode to dev or prod",
		}
	}
}

func checkMetricsTextfile(workDir, textfile string) Check {
	if strings.TrimSpace(textfile) == "" {
		return Check{Name: "metrics_textfile", Status: StatusPass, Message: "metrics textfile disabled"}
	}
	parent := filepath.Dir(resolve(workDir, textfile))
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return Check{
			Name:       "metrics_textfile",
			Status:     StatusWarn,
			Message:    fmt.Sprintf("metrics directory not writable: %v", err),
			FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(parent)),
		}
	}
	return Check{Name: "metrics_textfile", Status: StatusPass, Message: "metrics textfile directory ready"}
}

func hasAnyKeySource(cfg sign.KeyConfig) bool {
	return strings.TrimSpace(cfg.PrivateKeyPath) != "" ||
		strings.TrimSpace(cfg.PrivateKeyEnv) != "" ||
		strings.TrimSpace(cfg.PublicKeyPath) != "" ||
		strings.TrimSpace(cfg.PublicKeyEnv) != ""
}

func resolve(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

func resolveOptional(workDir, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return resolve(workDir, path)
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
