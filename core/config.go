package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Fallback policies applied when a remote sign-in/sign-up fails.
const (
	FallbackAlways      = "always"      // any failure yields a local session
	FallbackUnavailable = "unavailable" // only timeouts and transport failures do
	FallbackNever       = "never"
)

// Local storage drivers.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

type (
	Config struct {
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		AppName         string
		SecretKey       string
		WorkDir         string
		FrontendBaseURL string

		Server   ServerConfig
		Database DatabaseConfig
		Session  SessionConfig
		Storage  StorageConfig
		Push     PushConfig

		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		AdminSignUp               bool // lets public sign-ups claim the admin role
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	SessionConfig struct {
		RemoteURL     string
		SignInTimeout time.Duration
		SignUpTimeout time.Duration
		Fallback      string
		DemoAccounts  bool
	}

	StorageConfig struct {
		Driver        string
		Path          string
		RedisAddress  string
		RedisPassword string
		RedisDB       int
		RedisPrefix   string
	}

	PushConfig struct {
		WriteTimeout time.Duration
		PingInterval time.Duration
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the value of ENV: DEV (local; default), TEST, QA, PROD.
// A `config/.env.<env>` file is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "LoopVerse")
	v.SetDefault("secretKey", "k2#v9lq-7d!x0p&m3zr=w5c8(t1n4h)y6b^f@u$s")
	v.SetDefault("frontendBaseURL", "loopverse://")
	v.SetDefault("defaultFromEmail", "LoopVerse <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.adminSignUp", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "loopverse")
	v.SetDefault("database.user", "loopverse")
	v.SetDefault("database.password", "loopverse")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("session.remoteURL", "http://localhost:8000")
	v.SetDefault("session.signInTimeout", 8*time.Second)
	v.SetDefault("session.signUpTimeout", 10*time.Second)
	v.SetDefault("session.fallback", FallbackAlways)
	v.SetDefault("session.demoAccounts", false)

	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.path", filepath.Join(os.TempDir(), "loopverse", "storage.json"))
	v.SetDefault("storage.redisAddress", "localhost:6379")
	v.SetDefault("storage.redisPassword", "")
	v.SetDefault("storage.redisDB", 0)
	v.SetDefault("storage.redisPrefix", "loopverse:")

	v.SetDefault("push.writeTimeout", 10*time.Second)
	v.SetDefault("push.pingInterval", 50*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	if env == "DEV" || env == "TEST" {
		// demo accounts never ship outside local environments
		v.SetDefault("session.demoAccounts", true)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		WorkDir:         workDir,
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			AdminSignUp:               v.GetBool("server.adminSignUp"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Session: SessionConfig{
			RemoteURL:     v.GetString("session.remoteURL"),
			SignInTimeout: v.GetDuration("session.signInTimeout"),
			SignUpTimeout: v.GetDuration("session.signUpTimeout"),
			Fallback:      strings.ToLower(v.GetString("session.fallback")),
			DemoAccounts:  v.GetBool("session.demoAccounts"),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(v.GetString("storage.driver")),
			Path:          v.GetString("storage.path"),
			RedisAddress:  v.GetString("storage.redisAddress"),
			RedisPassword: v.GetString("storage.redisPassword"),
			RedisDB:       v.GetInt("storage.redisDB"),
			RedisPrefix:   v.GetString("storage.redisPrefix"),
		},
		Push: PushConfig{
			WriteTimeout: v.GetDuration("push.writeTimeout"),
			PingInterval: v.GetDuration("push.pingInterval"),
		},
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
	if err := conf.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

// Validate checks the values that cannot be defaulted silently.
func (conf *Config) Validate() error {
	switch conf.Session.Fallback {
	case FallbackAlways, FallbackUnavailable, FallbackNever:
	default:
		return fmt.Errorf("invalid session fallback policy %q", conf.Session.Fallback)
	}
	switch conf.Storage.Driver {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		return fmt.Errorf("invalid storage driver %q", conf.Storage.Driver)
	}
	if conf.Session.SignInTimeout <= 0 || conf.Session.SignUpTimeout <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	return nil
}
