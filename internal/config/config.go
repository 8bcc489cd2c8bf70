package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server Server `yaml:"server"`
	Device Device `yaml:"device"`
	Auth   Auth   `yaml:"auth"`
	Coop   Coop   `yaml:"coop"`
}

type Server struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// Device holds the client-side connection parameters for the controller
// endpoint, including the reconnect behaviour of the bridge.
type Device struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
}

type Auth struct {
	UsersFile string `yaml:"users_file"`
}

type Coop struct {
	Count int      `yaml:"count"`
	Names []string `yaml:"names"`
}

// Load reads the config file at path, applying defaults for anything the
// file does not set. A missing file is an error; callers that want to run
// without a file should pass Default() around instead.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: Server{
			Host:             "0.0.0.0",
			Port:             8765,
			SnapshotInterval: 5 * time.Second,
		},
		Device: Device{
			Host:           "127.0.0.1",
			Port:           81,
			DialTimeout:    10 * time.Second,
			ReconnectDelay: 4 * time.Second,
			SettleDelay:    500 * time.Millisecond,
		},
		Auth: Auth{
			UsersFile: "users.json",
		},
		Coop: Coop{
			Count: 3,
			Names: []string{"Kümes 1", "Kümes 2", "Kümes 3"},
		},
	}
}
