package tendermint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// InitTendermint initializes a Tendermint home directory with config and
// genesis files by running `tendermint init`. It does nothing when the home
// is already initialized.
func InitTendermint(tmHome string) error {
	if tmHome == "" {
		tmHome = TendermintHome()
	}

	configFile := filepath.Join(tmHome, "config", "config.toml")
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}

	cmd := exec.Command("tendermint", "init", "--home", tmHome)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to initialize Tendermint: %w", err)
	}
	return nil
}

// SetGenesisAppState writes appState into the app_state field of the home's
// genesis.json, keeping every other field. It refuses to replace a
// non-empty app_state unless force is set.
func SetGenesisAppState(tmHome string, appState json.RawMessage, force bool) error {
	if tmHome == "" {
		tmHome = TendermintHome()
	}
	path := filepath.Join(tmHome, "config", "genesis.json")

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read genesis: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode genesis: %w", err)
	}
	if existing, ok := doc["app_state"]; ok && !force && !emptyJSON(existing) {
		return errors.New("genesis already has an app_state")
	}
	doc["app_state"] = appState

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode genesis: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func emptyJSON(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "{}", `""`:
		return true
	}
	return false
}

// GetTendermintCommand returns the command that starts a Tendermint node
// using socketAddr as its ABCI application.
func GetTendermintCommand(tmHome, socketAddr string) *exec.Cmd {
	if tmHome == "" {
		tmHome = TendermintHome()
	}
	if socketAddr == "" {
		socketAddr = "unix://pubreg.sock"
	}

	cmd := exec.Command("tendermint", "node",
		"--home", tmHome,
		"--proxy_app", socketAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// TendermintHome returns $TMHOME or ~/.tendermint.
func TendermintHome() string {
	if home := os.Getenv("TMHOME"); home != "" {
		return home
	}
	return filepath.Join(os.Getenv("HOME"), ".tendermint")
}
