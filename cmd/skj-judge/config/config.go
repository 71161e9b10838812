package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/koding/multiconfig"
)

// MaxTasks is the number of task kinds, a batch never holds more
const MaxTasks = 5

// Number is a decimal unsigned 64 bit config value
type Number uint64

// Set implements flag.Value
func (n *Number) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

func (n Number) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Uint64 returns the value, 0 when unset
func (n *Number) Uint64() uint64 {
	if n == nil {
		return 0
	}
	return uint64(*n)
}

// Config defines judge server configuration
type Config struct {
	// run
	ConfigFile  string  `json:"-" flagUsage:"specifies the JSON config file, skipped when missing" default:"config.json"`
	TCPAddr     string  `json:"tcp_address" flagUsage:"specifies the handshake TCP binding address" default:"127.0.0.1:8080"`
	UDPAddr     string  `json:"udp_address" flagUsage:"specifies the exchange UDP binding address" default:"127.0.0.1:8081"`
	Seed        *Number `json:"seed" flagUsage:"seed of the task batch" default:"0"`
	InitFlag    *Number `json:"init_flag" flagUsage:"shared secret the client sends first" required:"true"`
	FinalFlag   *Number `json:"final_flag" flagUsage:"flag sent after every task passed" required:"true"`
	TasksAmount int     `json:"tasks_amount" flagUsage:"number of tasks in the batch (1 - 5)" default:"3"`
	PrintTasks  bool    `json:"-" flagUsage:"print the task batch as YAML and exit"`

	// server config
	HTTPAddr      string `json:"-" flagUsage:"specifies the status http binding address"`
	EnableGRPC    bool   `json:"-" flagUsage:"enable gRPC health endpoint"`
	GRPCAddr      string `json:"-" flagUsage:"specifies the grpc binding address" default:":5051"`
	MonitorAddr   string `json:"-" flagUsage:"specifies the metrics binding address" default:":5052"`
	AuthToken     string `json:"-" flagUsage:"bearer token auth for status / gRPC"`
	EnableDebug   bool   `json:"-" flagUsage:"enable debug endpoint and debug logs"`
	EnableMetrics bool   `json:"-" flagUsage:"enable promethus metrics endpoint"`

	// logger config
	Release bool `json:"-" flagUsage:"release level of logs"`
	Silent  bool `json:"-" flagUsage:"do not print logs"`

	// show version and exit
	Version bool `json:"-" flagUsage:"show version and exit"`
}

// Load loads config from defaults, the JSON config file, environment
// variables and flags, later sources override earlier ones
func (c *Config) Load() error {
	return c.load(os.Args[1:])
}

func (c *Config) load(args []string) error {
	// the config file location itself comes from env / flags
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
	if os.Getpid() == 1 {
		c.Release = true
	}
	return nil
}

func newLoader(path string, args []string) multiconfig.Loader {
	loaders := []multiconfig.Loader{&multiconfig.TagLoader{}}
	if path != "" {
		loaders = append(loaders, &multiconfig.JSONLoader{Path: path})
	}
	loaders = append(loaders,
		&multiconfig.EnvironmentLoader{
			Prefix:    "SKJ",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "SKJ",
			Args:      args,
		},
	)
	return multiconfig.MultiLoader(loaders...)
}

// Validate checks the loaded values. Version and PrintTasks runs only need
// a valid batch size.
func (c *Config) Validate() error {
	if c.TasksAmount < 1 || c.TasksAmount > MaxTasks {
		return fmt.Errorf("tasks amount must be in 1..%d, got %d", MaxTasks, c.TasksAmount)
	}
	if c.Version || c.PrintTasks {
		return nil
	}
	if err := (&multiconfig.RequiredValidator{}).Validate(c); err != nil {
		return err
	}
	var errs []error
	for name, addr := range map[string]string{"tcp address": c.TCPAddr, "udp address": c.UDPAddr} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", name, addr, err))
		}
	}
	return errors.Join(errs...)
}
