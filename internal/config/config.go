// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/skillstake/skillstake/pkg/pow"
)

// Devnet placeholders used when no valid address is configured.
const (
	DefaultProgramID = "C3e8kFFYMsEKxXwjMXix3vKSLfk9WwS1xcHeg5gedjvV"
	DefaultMint      = "BbdpHzXyQmNerced3qTs6trkRB3CbpkG6B1VbXYhs7BR"
)

// MaxPowDifficulty is the largest target the on-chain program accepts.
const MaxPowDifficulty = 248

// Environment variables that override file settings.
const (
	EnvProgramID     = "SKILLSTAKE_PROGRAM_ID"
	EnvMint          = "SKILLSTAKE_MINT"
	EnvPowDifficulty = "SKILLSTAKE_POW_DIFFICULTY"

	// EnvPassphrase unlocks the wallet keystore. It is never read from a file.
	EnvPassphrase = "SKILLSTAKE_PASSPHRASE"
)

// Paths holds XDG-compliant paths for skillstake.
type Paths struct {
	ConfigDir    string // ~/.config/skillstake
	DataDir      string // ~/.local/share/skillstake
	ConfigFile   string // ~/.config/skillstake/prover.toml
	ProverSocket string // ~/.local/share/skillstake/prover.sock
	KeystorePath string // ~/.local/share/skillstake/wallet.key
}

// ExpandPath expands ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
// Panics if home directory cannot be determined when ~ expansion is needed.
func ExpandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultPaths returns the default XDG-compliant paths.
// Panics if the user's home directory cannot be determined.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}
	configDir := filepath.Join(home, ".config", "skillstake")
	dataDir := filepath.Join(home, ".local", "share", "skillstake")

	return Paths{
		ConfigDir:    configDir,
		DataDir:      dataDir,
		ConfigFile:   filepath.Join(configDir, "prover.toml"),
		ProverSocket: filepath.Join(dataDir, "prover.sock"),
		KeystorePath: filepath.Join(dataDir, "wallet.key"),
	}
}

// EnsureDirectories creates config and data directories if they don't exist.
func (p Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return err
	}
	return os.MkdirAll(p.DataDir, 0700)
}

// ProverConfig holds configuration for skillstake-prover.
type ProverConfig struct {
	Program ProgramConfig `toml:"program"`
	Solver  SolverConfig  `toml:"solver"`
	Server  ServerConfig  `toml:"server"`
	Wallet  WalletConfig  `toml:"wallet"`
}

// ProgramConfig mirrors the on-chain program state the prover needs.
type ProgramConfig struct {
	ProgramID     string `toml:"program_id"`
	Mint          string `toml:"mint"`
	PowDifficulty int    `toml:"pow_difficulty"`
	PowReward     uint64 `toml:"pow_reward"`
	DomainTag     string `toml:"domain_tag"`
}

// SolverConfig holds search loop settings.
type SolverConfig struct {
	YieldInterval uint64 `toml:"yield_interval"`
	MaxIterations uint64 `toml:"max_iterations"`
}

// ServerConfig holds IPC settings.
type ServerConfig struct {
	Socket      string  `toml:"socket"`
	VerifyRate  float64 `toml:"verify_rate"`
	VerifyBurst int     `toml:"verify_burst"`
}

// WalletConfig says where the wallet identity comes from.
type WalletConfig struct {
	KeystorePath string `toml:"keystore_path"`
	// PublicKey is a watch-only address used when no keystore is loaded.
	PublicKey string `toml:"public_key"`
}

// DefaultProverConfig returns a ProverConfig with sensible defaults.
func DefaultProverConfig() ProverConfig {
	paths := DefaultPaths()
	return ProverConfig{
		Program: ProgramConfig{
			ProgramID:     DefaultProgramID,
			Mint:          DefaultMint,
			PowDifficulty: 16,
			DomainTag:     pow.DefaultDomainTag,
		},
		Solver: SolverConfig{
			YieldInterval: pow.DefaultYieldInterval,
		},
		Server: ServerConfig{
			Socket:      paths.ProverSocket,
			VerifyRate:  50,
			VerifyBurst: 100,
		},
		Wallet: WalletConfig{
			KeystorePath: paths.KeystorePath,
		},
	}
}

// LoadProverConfig loads a ProverConfig from a TOML file.
// Paths with ~ are expanded to the user's home directory.
func LoadProverConfig(path string) (*ProverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultProverConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.Server.Socket = ExpandPath(cfg.Server.Socket)
	cfg.Wallet.KeystorePath = ExpandPath(cfg.Wallet.KeystorePath)

	return &cfg, nil
}

// ApplyEnv overrides program settings from the environment.
// Unparsable values are reported through warn and ignored.
func (c *ProverConfig) ApplyEnv(warn *Warnings) {
	if v := os.Getenv(EnvProgramID); v != "" {
		c.Program.ProgramID = v
	}
	if v := os.Getenv(EnvMint); v != "" {
		c.Program.Mint = v
	}
	if v := os.Getenv(EnvPowDifficulty); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			warn.Warn(fmt.Sprintf("%s=%q is not an integer; keeping %d", EnvPowDifficulty, v, c.Program.PowDifficulty))
			return
		}
		c.Program.PowDifficulty = n
	}
}

// Difficulty returns the configured target.
// Values outside 0..MaxPowDifficulty are rejected with pow.ErrInvalidDifficulty.
func (p ProgramConfig) Difficulty() (pow.Difficulty, error) {
	if p.PowDifficulty < 0 || p.PowDifficulty > MaxPowDifficulty {
		return 0, fmt.Errorf("%w: %d not in 0..%d", pow.ErrInvalidDifficulty, p.PowDifficulty, MaxPowDifficulty)
	}
	return pow.Difficulty(p.PowDifficulty), nil
}

// MintKey resolves the mint address, falling back to DefaultMint with a
// warning when it is missing or malformed.
func (p ProgramConfig) MintKey(warn *Warnings) pow.PublicKey {
	return resolveKey("Token mint", p.Mint, DefaultMint, EnvMint, warn)
}

// ProgramKey resolves the program address the same way as MintKey.
func (p ProgramConfig) ProgramKey(warn *Warnings) pow.PublicKey {
	return resolveKey("Program address", p.ProgramID, DefaultProgramID, EnvProgramID, warn)
}

func resolveKey(label, value, fallback, env string, warn *Warnings) pow.PublicKey {
	if value == "" {
		warn.Warn(fmt.Sprintf("%s missing. Falling back to a placeholder. Set %s or the config file.", label, env))
		pk, _ := pow.ParsePublicKey(fallback)
		return pk
	}
	pk, err := pow.ParsePublicKey(value)
	if err != nil {
		warn.Warn(fmt.Sprintf("%s %q is not a valid public key. Falling back to a placeholder. Update %s.", label, value, env))
		pk, _ = pow.ParsePublicKey(fallback)
	}
	return pk
}
