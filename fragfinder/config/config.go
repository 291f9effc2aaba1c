// Package config resolves the connection parameters from defaults, the MySQL
// option file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/morikuni/failure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const ErrConfig failure.StringCode = "ConfigError"

const EnvPrefix = "FRAGFINDER"

// Groups are read in this order, later groups overriding earlier ones.
var Groups = []string{"client", "mysql", "fragfinder"}

type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	Socket         string
	ConnectTimeout time.Duration
}

func Default() *Config {
	return &Config{
		Host:     "localhost",
		Port:     3306,
		User:     os.Getenv("USER"),
		Database: "mysql",
	}
}

// DefaultsFile returns ~/.my.cnf, or "" when the home directory is unknown.
func DefaultsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".my.cnf")
}

// LoadDefaultsFile overlays the values found in the option file at path.
// A missing file is an error only when required is set.
func (c *Config) LoadDefaultsFile(path string, required bool) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return failure.Translate(err, ErrConfig,
			failure.Context{"file": path},
			failure.Messagef("cannot read option file %s", path),
		)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
		Insensitive:             true,
		IgnoreInlineComment:     true,
	}, path)
	if err != nil {
		return failure.Translate(err, ErrConfig,
			failure.Context{"file": path},
			failure.Messagef("cannot parse option file %s", path),
		)
	}

	for _, group := range Groups {
		if !f.HasSection(group) {
			continue
		}
		if err := c.applySection(f.Section(group)); err != nil {
			return failure.Wrap(err, failure.Context{"file": path, "group": group})
		}
	}

	return nil
}

func (c *Config) applySection(s *ini.Section) error {
	for _, k := range s.Keys() {
		v := unquote(k.Value())
		switch normalizeKey(k.Name()) {
		case "host":
			c.Host = v
		case "port":
			port, err := strconv.Atoi(v)
			if err != nil {
				return failure.Translate(err, ErrConfig, failure.Messagef("invalid port %q", v))
			}
			c.Port = port
		case "user":
			c.User = v
		case "password":
			c.Password = v
		case "database":
			c.Database = v
		case "socket":
			c.Socket = v
		case "connect_timeout":
			d, err := parseSeconds(v)
			if err != nil {
				return failure.Translate(err, ErrConfig, failure.Messagef("invalid connect-timeout %q", v))
			}
			c.ConnectTimeout = d
		}
	}

	return nil
}

// BindFlags registers the connection flags on fs and binds them, and the
// FRAGFINDER_* environment variables, to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.StringP("host", "h", "", "server host")
	fs.IntP("port", "P", 0, "server port")
	fs.StringP("user", "u", "", "user name")
	fs.StringP("password", "p", "", "password")
	fs.StringP("database", "D", "", "default database")
	fs.StringP("socket", "S", "", "unix socket path")
	fs.Duration("connect-timeout", 0, "connect timeout, 0 for the driver default")

	v.SetEnvPrefix(EnvPrefix)
	for _, key := range []string{"host", "port", "user", "password", "database", "socket", "connect-timeout"} {
		if err := v.BindPFlag(key, fs.Lookup(key)); err != nil {
			return failure.Wrap(err)
		}
		if err := v.BindEnv(key, envName(key)); err != nil {
			return failure.Wrap(err)
		}
	}

	return nil
}

// Apply overlays the environment and the explicitly set flags held by v.
func (c *Config) Apply(v *viper.Viper) {
	if v.IsSet("host") {
		c.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		c.Port = v.GetInt("port")
	}
	if v.IsSet("user") {
		c.User = v.GetString("user")
	}
	if v.IsSet("password") {
		c.Password = v.GetString("password")
	}
	if v.IsSet("database") {
		c.Database = v.GetString("database")
	}
	if v.IsSet("socket") {
		c.Socket = v.GetString("socket")
	}
	if v.IsSet("connect-timeout") {
		c.ConnectTimeout = v.GetDuration("connect-timeout")
	}
}

func (c *Config) Validate() error {
	if c.Socket == "" && c.Host == "" {
		return failure.New(ErrConfig, failure.Message("host or socket is required"))
	}
	if c.Socket == "" && (c.Port <= 0 || c.Port > 65535) {
		return failure.New(ErrConfig, failure.Messagef("invalid port %d", c.Port))
	}
	if c.User == "" {
		return failure.New(ErrConfig, failure.Message("user is required"))
	}

	return nil
}

func (c *Config) Addr() string {
	if c.Socket != "" {
		return c.Socket
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.Timeout = c.ConnectTimeout
	mc.ParseTime = false
	mc.InterpolateParams = false
	if c.Socket != "" {
		mc.Net = "unix"
	} else {
		mc.Net = "tcp"
	}
	mc.Addr = c.Addr()

	return mc.FormatDSN()
}

func (c *Config) String() string {
	return fmt.Sprintf("%s@%s/%s", c.User, c.Addr(), c.Database)
}
