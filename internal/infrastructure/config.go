package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "BIOLINGO"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout" yaml:"session_timeout"`
	Database       struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=sqlite mysql postgres"` // driver name
		Path     string `mapstructure:"path" json:"path" yaml:"path"`                                              // sqlite database file
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                                              // server host (mysql/postgres)
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                              // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"`
		User     string `mapstructure:"username" json:"username" yaml:"username"`
		Password string `mapstructure:"password" json:"password" yaml:"password"`
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema"`
		Query    string `mapstructure:"query" json:"query" yaml:"query"` // DSN query parameter
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`
	} `mapstructure:"database" json:"database" yaml:"database"`
	Catalog struct {
		Source string `mapstructure:"source" json:"source" yaml:"source" validate:"oneof=file remote"` // where to fetch the course catalog from
		Path   string `mapstructure:"path" json:"path" yaml:"path"`                                    // catalog file (source=file)
	} `mapstructure:"catalog" json:"catalog" yaml:"catalog"`
	Remote struct {
		BaseURL string        `mapstructure:"base_url" json:"base_url" yaml:"base_url" validate:"required,url"` // progress service endpoint
		Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	} `mapstructure:"remote" json:"remote" yaml:"remote"`
	Sync struct {
		FlushInterval   time.Duration `mapstructure:"flush_interval" json:"flush_interval" yaml:"flush_interval"`          // periodic retry flush, 0 disables
		ProbeInterval   time.Duration `mapstructure:"probe_interval" json:"probe_interval" yaml:"probe_interval"`          // connectivity probe period
		GuestSessionTTL time.Duration `mapstructure:"guest_session_ttl" json:"guest_session_ttl" yaml:"guest_session_ttl"` // lifetime of guest progress in the kv store
	} `mapstructure:"sync" json:"sync" yaml:"sync"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength  int    `mapstructure:"id_length" json:"id_length" yaml:"id_length"` // length of generated session IDs
		JWTMethod string `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS512 ES256"`
		JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret" yaml:"jwt_secret" validate:"required"`
		TokenName string `mapstructure:"token_name" json:"token_name" yaml:"token_name" validate:"required"` // jwt token name set in cookie
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`
		Password string `mapstructure:"password" json:"password" yaml:"password"`
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	// app
	pflag.String("host", "", "binding address")
	pflag.String("app_id", "", "application identifier (required)")
	pflag.String("env", "development", "runtime environment, can be 'development' or 'production'")
	pflag.Int("port", 8081, "listening port")
	pflag.Duration("request_timeout", 30*time.Second, "per request timeout")
	pflag.Duration("session_timeout", 30*time.Minute, "JWT lifetime(m, s and h units are supported), eg.30m")

	// database
	pflag.String("database.driver", "sqlite", "durable store driver, can be 'sqlite', 'mysql' or 'postgres'")
	pflag.String("database.path", "data/progress.db", "database file path (sqlite only)")
	pflag.String("database.host", "127.0.0.1", "database host (mysql/postgres)")
	pflag.Int("database.port", 0, "database server port")
	pflag.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	pflag.String("database.username", "", "database username")
	pflag.String("database.password", "", "database password")
	pflag.String("database.schema", "", "database schema")
	pflag.String("database.query", "", "additional DSN query parameters('?' is auto prefixed)")
	pflag.Int32("database.maxconn", 1, "max connection count, keep 1 for sqlite (single writer)")

	// catalog
	pflag.String("catalog.source", "file", "course catalog source, can be 'file' or 'remote'")
	pflag.String("catalog.path", "data/catalog.json", "course catalog file (source=file)")

	// remote progress service
	pflag.String("remote.base_url", "", "base URL of the remote progress service (required)")
	pflag.Duration("remote.timeout", 10*time.Second, "remote request timeout")

	// sync
	pflag.Duration("sync.flush_interval", 2*time.Minute, "periodic retry flush interval, 0 to disable")
	pflag.Duration("sync.probe_interval", 15*time.Second, "connectivity probe interval")
	pflag.Duration("sync.guest_session_ttl", 12*time.Hour, "guest progress lifetime in the kv store")

	// logging
	pflag.String("logging.level", "info", "logging level")
	pflag.String("logging.file_path", "", "log to file")

	// security
	pflag.Int("security.id_length", 24, "set length of generated session IDs")
	pflag.String("security.jwt_method", "HS256", "hash algorithm used for JWT auth")
	pflag.String("security.jwt_secret", "", "JWT secret (required)")
	pflag.String("security.token_name", "", "cookie name to store the token (required)")

	// kv storage
	pflag.String("kv.host", "127.0.0.1", "kv host")
	pflag.Int("kv.port", 6379, "kv server port")
	pflag.String("kv.password", "", "kv server password")

	// DevOp
	pflag.Bool("devop.apm", false, "enable apm metrics")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config = new(AppConfig)
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "-" || name == "" {
			name = fld.Tag.Get("yaml")
			if name == "-" || name == "" {
				return ""
			}
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		log.Fatalf("Failed to validate config: %s", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		default:
			msg = append(msg, fmt.Sprintf("%s failed on the '%s' rule", fieldName, field.Tag()))
		}
	}
	if len(msg) > 0 {
		return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
	}
	return nil
}
