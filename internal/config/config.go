package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	Port             string        `mapstructure:"PORT"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	AdminKey         string        `mapstructure:"ADMIN_KEY"`
	DriveTimeURL     string        `mapstructure:"DRIVE_TIME_URL"`
	GeocoderBaseURL  string        `mapstructure:"GEOCODER_BASE_URL"`
	GeocoderAgent    string        `mapstructure:"GEOCODER_USER_AGENT"`
	CountryDefault   string        `mapstructure:"COUNTRY_DEFAULT"`
	CORSAllowed      string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	MigrateOnStartup bool          `mapstructure:"MIGRATE_ON_STARTUP"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("COUNTRY_DEFAULT", "USA")
	v.SetDefault("GEOCODER_USER_AGENT", "fieldserve-dispatch")
	v.SetDefault("MIGRATE_ON_STARTUP", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
