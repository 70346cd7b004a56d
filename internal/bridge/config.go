// Package bridge wires the stores, the rule engine, the planner and the
// duplicate detector into one runnable engine behind the CLI.
package bridge

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/notebridge/pkg/reconcile"
	"github.com/aretw0/notebridge/pkg/rules"
)

// DefaultConfigName is where commands look for a config when --config is
// not given.
const DefaultConfigName = "notebridge.yaml"

// stateDirName is the hidden directory inside the vault holding the sync
// state cache and the run lock. It is always excluded from syncing.
const stateDirName = ".notebridge"

// JoplinConfig locates the Joplin data API.
type JoplinConfig struct {
	APIBase string `yaml:"api_base"`
	Token   string `yaml:"token"`
}

// VaultConfig locates the plain-file vault.
type VaultConfig struct {
	Path     string   `yaml:"path"`
	Ignore   []string `yaml:"ignore"`
	TrashDir string   `yaml:"trash_dir"`
}

// DuplicatesConfig carries the similarity thresholds for the duplicate
// scanner.
type DuplicatesConfig struct {
	TitleThreshold float64 `yaml:"title_threshold"`
	BodyThreshold  float64 `yaml:"body_threshold"`
}

// ConflictsConfig selects how both-sides-modified pairs are resolved.
type ConflictsConfig struct {
	Policy string `yaml:"policy"`
}

// Config is the full on-disk configuration.
type Config struct {
	Joplin     JoplinConfig     `yaml:"joplin"`
	Vault      VaultConfig      `yaml:"vault"`
	SyncRules  rules.Document   `yaml:"sync_rules"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
	Conflicts  ConflictsConfig  `yaml:"conflicts"`
}

// DefaultConfig returns the configuration used when a field is left unset.
func DefaultConfig() Config {
	return Config{
		Joplin: JoplinConfig{
			APIBase: "http://localhost:41184",
		},
		Duplicates: DuplicatesConfig{
			TitleThreshold: 0.80,
			BodyThreshold:  0.70,
		},
		Conflicts: ConflictsConfig{
			Policy: string(reconcile.PolicyPreferNewest),
		},
	}
}

// LoadConfig reads a YAML config file, fills unset fields with defaults and
// resolves the Joplin token from the JOPLIN_TOKEN environment variable when
// the file leaves it empty. A malformed file is a fatal error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("malformed config %s: %w", path, err)
	}

	if cfg.Joplin.APIBase == "" {
		cfg.Joplin.APIBase = DefaultConfig().Joplin.APIBase
	}
	if cfg.Joplin.Token == "" {
		cfg.Joplin.Token = os.Getenv("JOPLIN_TOKEN")
	}
	if cfg.Duplicates.TitleThreshold == 0 {
		cfg.Duplicates.TitleThreshold = DefaultConfig().Duplicates.TitleThreshold
	}
	if cfg.Duplicates.BodyThreshold == 0 {
		cfg.Duplicates.BodyThreshold = DefaultConfig().Duplicates.BodyThreshold
	}
	if cfg.Conflicts.Policy == "" {
		cfg.Conflicts.Policy = string(reconcile.PolicyPreferNewest)
	}

	if cfg.Vault.Path == "" {
		return cfg, fmt.Errorf("config %s: vault.path is required", path)
	}
	switch reconcile.ConflictPolicy(cfg.Conflicts.Policy) {
	case reconcile.PolicyPreferNewest, reconcile.PolicyArchiveLoser:
	default:
		return cfg, fmt.Errorf("config %s: unknown conflict policy %q", path, cfg.Conflicts.Policy)
	}
	return cfg, nil
}

// StatePath is where the sync state cache lives, inside the vault so it
// travels with the notes it describes.
func (c Config) StatePath() string {
	return filepath.Join(c.Vault.Path, stateDirName, "state.json")
}

// LockPath is the run lock guarding against concurrent syncs of one vault.
func (c Config) LockPath() string {
	return filepath.Join(c.Vault.Path, stateDirName, "lock")
}

const starterConfig = `# notebridge configuration
joplin:
  api_base: http://localhost:41184
  # Token from Joplin: Tools > Options > Web Clipper. Can also be set via
  # the JOPLIN_TOKEN environment variable.
  token: ""

vault:
  path: /path/to/your/obsidian/vault
  # Extra glob patterns to leave out of syncing.
  ignore: []

# Per-folder sync direction. Patterns are globs matched against full
# folder paths; the first matching category wins, skip_sync first.
sync_rules:
  skip_sync: []
  joplin_to_obsidian_only: []
  obsidian_to_joplin_only: []
  bidirectional: []

duplicates:
  title_threshold: 0.80
  body_threshold: 0.70

conflicts:
  # prefer-newest discards the losing edit; archive-loser keeps a copy of
  # it in the vault trash.
  policy: prefer-newest
`

// WriteStarterConfig writes a commented template config, refusing to
// overwrite an existing file.
func WriteStarterConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
