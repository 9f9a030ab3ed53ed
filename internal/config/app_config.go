// Package config handles build-time facts (AppConfig) and the
// yaml-backed, user-editable settings (UserConfig) for the shell's
// concurrency core. Adapted from pkg/config/app_config.go and
// pkg/config/user_config.go: same xdg config-dir resolution, same
// create-if-missing config.yml, same jesseduffield/yaml unmarshal.
package config

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	yaml "github.com/jesseduffield/yaml"
)

// AppConfig contains the base configuration fields required to boot
// the shell.
type AppConfig struct {
	Debug      bool
	Version    string
	Commit     string
	BuildDate  string
	Name       string
	UserConfig *UserConfig
	ConfigDir  string
}

// NewAppConfig makes a new app config, loading (and creating if absent)
// the on-disk config.yml under the xdg config dir.
func NewAppConfig(name, version, commit, date string, debuggingFlag bool) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(configDir)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Name:       name,
		Version:    version,
		Commit:     commit,
		BuildDate:  date,
		Debug:      debuggingFlag || os.Getenv("DEBUG") == "TRUE",
		UserConfig: userConfig,
		ConfigDir:  configDir,
	}, nil
}

func configDirForVendor(vendor string, projectName string) string {
	if envConfigDir := os.Getenv("CONFIG_DIR"); envConfigDir != "" {
		return envConfigDir
	}
	configDirs := xdg.New(vendor, projectName)
	return configDirs.ConfigHome()
}

func findOrCreateConfigDir(projectName string) (string, error) {
	folder := configDirForVendor("", projectName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	return folder, nil
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	base := GetDefaultConfig()
	return loadUserConfig(configDir, &base)
}

func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "config.yml")

	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			file, createErr := os.Create(fileName)
			if createErr != nil {
				return nil, createErr
			}
			file.Close()
		} else {
			return nil, err
		}
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(content, base); err != nil {
		return nil, err
	}

	return base, nil
}

// Save writes the current UserConfig back to config.yml.
func (c *AppConfig) Save() error {
	content, err := yaml.Marshal(c.UserConfig)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.ConfigDir, "config.yml"), content, 0o644)
}
