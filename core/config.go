package core

import (
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

type (
	ServerConfig struct {
		Host            string        `mapstructure:"host"`
		DebugHost       string        `mapstructure:"debugHost"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
		DisableReqLogs  bool          `mapstructure:"disableReqLogs"`
	}

	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"`
		Host          string `mapstructure:"host"`
		Port          string `mapstructure:"port"`
		Name          string `mapstructure:"name"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"adminUser"`
		AdminPassword string `mapstructure:"adminPassword"`
		DisableTLS    bool   `mapstructure:"disableTLS"`
	}

	SMTPConfig struct {
		Host          string `mapstructure:"host"`
		Port          int    `mapstructure:"port"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		SkipTLSVerify bool   `mapstructure:"skipTLSVerify"`
	}

	EmailConfig struct {
		Backend        string     `mapstructure:"backend"` // console | sendgrid | smtp
		SendgridAPIKey string     `mapstructure:"sendgridApiKey"`
		SMTP           SMTPConfig `mapstructure:"smtp"`
	}

	SummarizerConfig struct {
		Enabled      bool          `mapstructure:"enabled"`
		Endpoint     string        `mapstructure:"endpoint"`
		Model        string        `mapstructure:"model"`
		APIKey       string        `mapstructure:"apiKey"`
		SystemPrompt string        `mapstructure:"systemPrompt"`
		Timeout      time.Duration `mapstructure:"timeout"`
	}

	ReviewConfig struct {
		ReviewsPerStudent int   `mapstructure:"reviewsPerStudent"`
		ShuffleSeed       int64 `mapstructure:"shuffleSeed"` // 0: random
		NotifyReviewers   bool  `mapstructure:"notifyReviewers"`
	}

	Config struct {
		Env             string           `mapstructure:"env"`
		Build           string           `mapstructure:"build"`
		Debug           bool             `mapstructure:"debug"`
		TestMode        bool             `mapstructure:"testMode"`
		AppName         string           `mapstructure:"appName"`
		FrontendBaseURL string           `mapstructure:"frontendBaseUrl"`
		DefaultFromName string           `mapstructure:"defaultFromName"`
		DefaultFromAddr string           `mapstructure:"defaultFromEmail"`
		RollbarToken    string           `mapstructure:"rollbarToken"`
		Server          ServerConfig     `mapstructure:"server"`
		Database        DatabaseConfig   `mapstructure:"database"`
		Email           EmailConfig      `mapstructure:"email"`
		Summarizer      SummarizerConfig `mapstructure:"summarizer"`
		Review          ReviewConfig     `mapstructure:"review"`
	}
)

// Address returns the database "host:port".
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	name := c.DefaultFromName
	if name == "" {
		name = c.AppName
	}
	return mail.Address{Name: name, Address: c.DefaultFromAddr}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Peerly")
	v.SetDefault("frontendBaseUrl", "http://localhost:8080")
	v.SetDefault("defaultFromName", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "peerly")
	v.SetDefault("database.user", "peerly")
	v.SetDefault("database.password", "peerly")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("email.backend", "console")
	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.user", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.skipTLSVerify", false)

	v.SetDefault("summarizer.enabled", false)
	v.SetDefault("summarizer.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("summarizer.model", "gpt-4o-mini")
	v.SetDefault("summarizer.apiKey", "")
	v.SetDefault("summarizer.systemPrompt", "")
	v.SetDefault("summarizer.timeout", 30*time.Second)

	v.SetDefault("review.reviewsPerStudent", 1)
	v.SetDefault("review.shuffleSeed", 0)
	v.SetDefault("review.notifyReviewers", true)
}

// NewConfig builds the app Config from defaults, an optional YAML file (CONFIG_FILE),
// an optional `config/.env.<env>` file and the environment, in increasing priority.
// Environment keys are prefixed with the env name, eg. `DEV_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.Set("env", env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("config.ReadInConfig(%s): %v", path, err)
		}
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	return conf
}
