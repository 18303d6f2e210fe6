package config

import (
	"os"

	"github.com/kkyr/fig"
)

const EnvPrefix = "NETPLAY"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix NETPLAY_.
// Params from the config should be in uppercase separated with _,
// i.e. NETPLAY_SYNC_DELTATHRESHOLD=40.
// Values already present in config are kept unless the file
// or the environment overrides them.
func LoadConfig(config interface{}, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.netplay")
		}
	}
	if err := fig.Load(config, fig.Dirs(dirs...), fig.UseEnv(EnvPrefix)); err != nil {
		return err
	}
	return nil
}
