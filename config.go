package goboreal

import (
	"errors"
	"os"
	path "path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/BurntSushi/toml"
)

const (
	defaultPrefetchLookahead  = 4
	defaultBindStageThreshold = 65280
	defaultRequestTimeout     = 0 // no timeout
)

// Config holds every session-level setting the driver core consumes. It is an
// explicit object handed to the transport at session-build time; the driver
// keeps no mutable global configuration.
type Config struct {
	Account   string
	User      string
	Database  string
	Schema    string
	Warehouse string
	Role      string

	Host     string
	Port     int
	Protocol string

	// Token is the session token issued by the authenticator. Session
	// establishment itself is outside this package.
	Token string

	// Application names the connecting application for server-side tagging.
	Application string

	// Params are free-form session parameters forwarded with every request.
	Params map[string]*string

	// ParamStyle selects the placeholder syntax, mutually exclusive per
	// connection: pyformat (%s / %(name)s) or qmark (? / :N).
	ParamStyle ParamStyle

	// ResultFormat requests a wire encoding for result sets; empty means the
	// driver picks columnar when the decoder is available.
	ResultFormat string

	// Timezone is the session timezone TIMESTAMP_LTZ values are normalized
	// to at decode time. Defaults to UTC.
	Timezone *time.Location

	// HigherPrecision decodes FIXED columns into arbitrary-precision values
	// instead of int64/float64.
	HigherPrecision bool

	// ReuseResults keeps materialized rows across Cursor.Reset so a
	// subsequent fetch replays them from the start.
	ReuseResults bool

	// PrefetchLookahead bounds how many result batches beyond the consumer's
	// position may be fetched in the background.
	PrefetchLookahead int

	// BindStageThreshold is the bind count at or above which bulk bindings
	// are uploaded to a stage instead of riding in the request body.
	BindStageThreshold int

	ClientCategory ClientCategory

	RequestTimeout time.Duration
}

// fillDefaults normalizes a zero-valued Config in place.
func (cfg *Config) fillDefaults() {
	if cfg.Protocol == "" {
		cfg.Protocol = "https"
	}
	if cfg.Port == 0 {
		cfg.Port = 443
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]*string)
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.PrefetchLookahead <= 0 {
		cfg.PrefetchLookahead = defaultPrefetchLookahead
	}
	if cfg.BindStageThreshold <= 0 {
		cfg.BindStageThreshold = defaultBindStageThreshold
	}
	if cfg.ClientCategory == "" {
		cfg.ClientCategory = ClientCategoryDriver
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
}

func (cfg *Config) decodeContext() *decodeContext {
	return &decodeContext{loc: cfg.Timezone, higherPrecision: cfg.HigherPrecision}
}

// LoadConnectionConfig returns a Config loaded from the connections.toml
// profile file. By default BOREAL_HOME (the toml file directory) is
// os.home/boreal and BOREAL_DEFAULT_CONNECTION_NAME (the profile) is
// 'default'.
func LoadConnectionConfig() (*Config, error) {
	cfg := &Config{
		Params: make(map[string]*string),
	}
	profile := os.Getenv("BOREAL_DEFAULT_CONNECTION_NAME")
	if profile == "" {
		profile = "default"
	}
	configDir, err := getTomlFilePath(os.Getenv("BOREAL_HOME"))
	if err != nil {
		return nil, err
	}
	tomlFilePath := path.Join(configDir, "connections.toml")
	if err = validateFilePermission(tomlFilePath); err != nil {
		return nil, err
	}
	tomlInfo := make(map[string]interface{})
	if _, err = toml.DecodeFile(tomlFilePath, &tomlInfo); err != nil {
		return nil, err
	}
	profileInfo, exist := tomlInfo[profile]
	if !exist {
		return nil, errors.New("failed to find the connection profile in the toml file: " + profile)
	}
	profileValues, ok := profileInfo.(map[string]interface{})
	if !ok {
		return nil, errors.New("malformed connection profile in the toml file: " + profile)
	}
	if err = parseToml(cfg, profileValues); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func parseToml(cfg *Config, profile map[string]interface{}) error {
	var parsingErr error
	for key, value := range profile {
		switch strings.ToLower(key) {
		case "user", "username":
			cfg.User, parsingErr = parseString(value)
		case "account":
			cfg.Account, parsingErr = parseString(value)
		case "host":
			cfg.Host, parsingErr = parseString(value)
		case "port":
			cfg.Port, parsingErr = parseInt(value)
		case "protocol":
			cfg.Protocol, parsingErr = parseString(value)
		case "database":
			cfg.Database, parsingErr = parseString(value)
		case "schema":
			cfg.Schema, parsingErr = parseString(value)
		case "warehouse":
			cfg.Warehouse, parsingErr = parseString(value)
		case "role":
			cfg.Role, parsingErr = parseString(value)
		case "token":
			cfg.Token, parsingErr = parseString(value)
		case "application":
			cfg.Application, parsingErr = parseString(value)
		case "paramstyle":
			var v string
			if v, parsingErr = parseString(value); parsingErr == nil {
				cfg.ParamStyle, parsingErr = parseParamStyle(v)
			}
		case "resultformat":
			cfg.ResultFormat, parsingErr = parseString(value)
		case "timezone":
			var v string
			if v, parsingErr = parseString(value); parsingErr == nil {
				cfg.Timezone, parsingErr = time.LoadLocation(v)
			}
		case "higherprecision":
			cfg.HigherPrecision, parsingErr = parseBool(value)
		case "reuseresults":
			cfg.ReuseResults, parsingErr = parseBool(value)
		case "prefetchlookahead":
			cfg.PrefetchLookahead, parsingErr = parseInt(value)
		case "bindstagethreshold":
			cfg.BindStageThreshold, parsingErr = parseInt(value)
		case "requesttimeout":
			cfg.RequestTimeout, parsingErr = parseDuration(value)
		default:
			var v string
			if v, parsingErr = parseString(value); parsingErr == nil {
				param := v
				cfg.Params[strings.ToLower(key)] = &param
			}
		}
		if parsingErr != nil {
			return errors.New("failed to parse toml value for key: " + key)
		}
	}
	return nil
}

func parseString(i interface{}) (string, error) {
	v, ok := i.(string)
	if !ok {
		return "", errors.New("failed to convert the value to string")
	}
	return v, nil
}

func parseInt(i interface{}) (int, error) {
	switch v := i.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	}
	return 0, errors.New("failed to parse the value to integer")
}

func parseBool(i interface{}) (bool, error) {
	switch v := i.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	}
	return false, errors.New("failed to parse the value to boolean")
}

func parseDuration(i interface{}) (time.Duration, error) {
	num, err := parseInt(i)
	if err != nil {
		return 0, err
	}
	return time.Duration(int64(num) * int64(time.Second)), nil
}

func getTomlFilePath(filePath string) (string, error) {
	if len(filePath) != 0 {
		if path.IsAbs(filePath) {
			return filePath, nil
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		filePath = path.Join(homeDir, "boreal")
	}
	return path.Abs(filePath)
}

func validateFilePermission(filePath string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if permission := fileInfo.Mode().Perm(); permission != os.FileMode(0600) {
		return errors.New("your access to the file was denied")
	}
	return nil
}
