package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/spf13/viper"

	auth "github.com/photolog/photolog-auth"
)

// EnvPrefix prefixes every environment override, i.e. PHOTOLOG_FIREBASE_API_KEY.
const EnvPrefix = "PHOTOLOG"

// Config is the client configuration.
type Config struct {
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
}

type FirebaseConfig struct {
	APIKey     string `mapstructure:"api_key"`
	AuthDomain string `mapstructure:"auth_domain"`
	ProjectID  string `mapstructure:"project_id"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Persistence string `mapstructure:"persistence"`
	DBPath      string `mapstructure:"db_path"`
}

type AdminConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key so environment overrides are picked up
// by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("firebase.api_key", "")
	v.SetDefault("firebase.auth_domain", "")
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("backend.base_url", "http://localhost:5000/api")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("session.persistence", string(auth.PersistenceLocal))
	v.SetDefault("session.db_path", defaultDBPath())
	v.SetDefault("admin.page_size", auth.DefaultPageSize)
	v.SetDefault("log.level", "info")
}

// Setup wires defaults, the config file search path and the environment
// onto v. An empty file searches ./photolog.yaml and $HOME/.photolog.
func Setup(v *viper.Viper, file string) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("photolog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photolog")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the optional config file and returns the validated config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Firebase),
		validation.Field(&c.Backend),
		validation.Field(&c.Session),
		validation.Field(&c.Admin),
		validation.Field(&c.Log),
	)
}

func (c FirebaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.AuthDomain, validation.Required, validation.By(validAuthDomain)),
		validation.Field(&c.ProjectID, validation.Required),
	)
}

// Missing lists the keys still empty, in config key form.
func (c FirebaseConfig) Missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "firebase.api_key")
	}
	if c.AuthDomain == "" {
		missing = append(missing, "firebase.auth_domain")
	}
	if c.ProjectID == "" {
		missing = append(missing, "firebase.project_id")
	}
	return missing
}

func validAuthDomain(value interface{}) error {
	domain, _ := value.(string)
	if domain == "" {
		return nil
	}
	if strings.Contains(domain, ".") || strings.Contains(domain, "localhost") {
		return nil
	}
	return errors.New("must be a domain such as <project>.firebaseapp.com")
}

func (c BackendConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
	)
}

func (c SessionConfig) Validate() error {
	var dbPathRules []validation.Rule
	if c.Persistence == string(auth.PersistenceLocal) {
		dbPathRules = append(dbPathRules, validation.Required)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Persistence, validation.Required, validation.In(
			string(auth.PersistenceLocal),
			string(auth.PersistenceMemory),
		)),
		validation.Field(&c.DBPath, dbPathRules...),
	)
}

func (c AdminConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// GetPersistence returns the configured persistence mode.
func (c Config) GetPersistence() auth.Persistence {
	return auth.Persistence(c.Session.Persistence)
}

// GetPageSize returns the admin page size.
func (c Config) GetPageSize() int {
	if c.Admin.PageSize <= 0 {
		return auth.DefaultPageSize
	}
	return c.Admin.PageSize
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "photolog-session.db"
	}
	return filepath.Join(home, ".photolog", "session.db")
}
