package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
)

type Config struct {
	Datadir  string
	HTTPPort uint32
	LogLevel uint32

	DbType     string
	LedgerType string
	LedgerURL  string

	SweepInterval     time.Duration
	LedgerCallTimeout time.Duration

	MutatingRateWindow    time.Duration
	MutatingRateThreshold int
	ReadRateWindow        time.Duration
	ReadRateThreshold     int
}

var (
	Datadir    = "DATADIR"
	HTTPPort   = "HTTP_PORT"
	LogLevel   = "LOG_LEVEL"
	DbType     = "DB_TYPE"
	LedgerType = "LEDGER_TYPE"
	LedgerURL  = "LEDGER_URL"

	SweepInterval     = "SWEEP_INTERVAL"
	LedgerCallTimeout = "LEDGER_CALL_TIMEOUT"

	MutatingRateWindow    = "MUTATING_RATE_WINDOW"
	MutatingRateThreshold = "MUTATING_RATE_THRESHOLD"
	ReadRateWindow        = "READ_RATE_WINDOW"
	ReadRateThreshold     = "READ_RATE_THRESHOLD"

	defaultDatadir           = appDatadir("swapd")
	defaultHTTPPort          = 7100
	defaultLogLevel          = 4
	defaultDbType            = "badger"
	defaultLedgerType        = "memledger"
	defaultSweepInterval     = 30 * time.Second
	defaultLedgerCallTimeout = 10 * time.Second
	defaultMutatingWindow    = time.Minute
	defaultMutatingThreshold = 30
	defaultReadWindow        = time.Minute
	defaultReadThreshold     = 300
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("SWAPD")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(HTTPPort, defaultHTTPPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(LedgerType, defaultLedgerType)
	viper.SetDefault(SweepInterval, defaultSweepInterval)
	viper.SetDefault(LedgerCallTimeout, defaultLedgerCallTimeout)
	viper.SetDefault(MutatingRateWindow, defaultMutatingWindow)
	viper.SetDefault(MutatingRateThreshold, defaultMutatingThreshold)
	viper.SetDefault(ReadRateWindow, defaultReadWindow)
	viper.SetDefault(ReadRateThreshold, defaultReadThreshold)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	config := &Config{
		Datadir:               cleanAndExpandPath(viper.GetString(Datadir)),
		HTTPPort:              viper.GetUint32(HTTPPort),
		LogLevel:              viper.GetUint32(LogLevel),
		DbType:                viper.GetString(DbType),
		LedgerType:            viper.GetString(LedgerType),
		LedgerURL:             viper.GetString(LedgerURL),
		SweepInterval:         viper.GetDuration(SweepInterval),
		LedgerCallTimeout:     viper.GetDuration(LedgerCallTimeout),
		MutatingRateWindow:    viper.GetDuration(MutatingRateWindow),
		MutatingRateThreshold: viper.GetInt(MutatingRateThreshold),
		ReadRateWindow:        viper.GetDuration(ReadRateWindow),
		ReadRateThreshold:     viper.GetInt(ReadRateThreshold),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.DbType {
	case "badger", "inmem":
	default:
		return fmt.Errorf("unknown db type %q", c.DbType)
	}
	switch c.LedgerType {
	case "memledger":
	case "rpc":
		if c.LedgerURL == "" {
			return fmt.Errorf("ledger url is required for the rpc ledger")
		}
	default:
		return fmt.Errorf("unknown ledger type %q", c.LedgerType)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data.
func appDatadir(appName string) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}
	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library", "Application Support", appNameUpper)
		}
	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
