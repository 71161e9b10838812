package config

import (
	"os"

	"github.com/koding/multiconfig"
	judgeconfig "github.com/skj-judge/skj-judge/cmd/skj-judge/config"
)

// Config defines reference client configuration. It reads the same JSON
// file as the judge so both sides agree on the batch.
type Config struct {
	ConfigFile  string              `json:"-" flagUsage:"specifies the JSON config file shared with the judge, skipped when missing" default:"config.json"`
	TCPAddr     string              `json:"tcp_address" flagUsage:"specifies the judge handshake address" default:"127.0.0.1:8080"`
	UDPAddr     string              `json:"-" flagUsage:"specifies the local UDP address answers are sent from" default:"127.0.0.1:0"`
	Seed        *judgeconfig.Number `json:"seed" flagUsage:"seed of the task batch" default:"0"`
	InitFlag    *judgeconfig.Number `json:"init_flag" flagUsage:"shared secret sent to the judge" required:"true"`
	TasksAmount int                 `json:"tasks_amount" flagUsage:"number of tasks in the batch (1 - 5)" default:"3"`

	// WrongTask answers the task with this 1 based index wrong, 0 disables
	WrongTask int `json:"-" flagUsage:"answer the task with this 1 based index wrong"`

	Silent bool `json:"-" flagUsage:"do not print logs"`
}

// Load loads config from defaults, the JSON config file, environment
// variables (SKJ_CLIENT_ prefix) and flags
func (c *Config) Load() error {
	return c.load(os.Args[1:])
}

func (c *Config) load(args []string) error {
	var boot Config
	if err := newLoader("", args).Load(&boot); err != nil {
		return err
	}
	path := boot.ConfigFile
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	if err := newLoader(path, args).Load(c); err != nil {
		return err
	}
	return (&multiconfig.RequiredValidator{}).Validate(c)
}

func newLoader(path string, args []string) multiconfig.Loader {
	loaders := []multiconfig.Loader{&multiconfig.TagLoader{}}
	if path != "" {
		loaders = append(loaders, &multiconfig.JSONLoader{Path: path})
	}
	loaders = append(loaders,
		&multiconfig.EnvironmentLoader{
			Prefix:    "SKJ_CLIENT",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "SKJ_CLIENT",
			Args:      args,
		},
	)
	return multiconfig.MultiLoader(loaders...)
}
