// config/config.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	TrustedProxies  []string      `mapstructure:"trustedProxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
	// Endpoint points the client at an S3-compatible store (MinIO, LocalStack).
	Endpoint string `mapstructure:"endpoint"`
}

type NominatimConfig struct {
	BaseURL      string        `mapstructure:"baseURL"`
	UserAgent    string        `mapstructure:"userAgent"`
	RateLimit    float64       `mapstructure:"rateLimit"`
	CountryCodes string        `mapstructure:"countryCodes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type GeocodeConfig struct {
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"maxBytes"`
}

type RateLimitConfig struct {
	SubmitLimit  int           `mapstructure:"submitLimit"`
	SubmitPeriod time.Duration `mapstructure:"submitPeriod"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	S3        S3Config        `mapstructure:"s3"`
	Nominatim NominatimConfig `mapstructure:"nominatim"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Upload    UploadConfig    `mapstructure:"upload"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.port":            "SERVER_PORT",
	"mongo.uri":              "MONGO_URI",
	"mongo.dbName":           "MONGO_DBNAME",
	"redis.addr":             "REDIS_ADDR",
	"redis.password":         "REDIS_PASSWORD",
	"jwt.secret":             "JWT_SECRET",
	"jwt.expiration":         "JWT_EXPIRATION",
	"s3.bucket":              "S3_BUCKET",
	"s3.region":              "S3_REGION",
	"s3.accessKeyID":         "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":     "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain":    "S3_CLOUDFRONT_DOMAIN",
	"s3.endpoint":            "S3_ENDPOINT",
	"nominatim.baseURL":      "NOMINATIM_BASE_URL",
	"nominatim.userAgent":    "NOMINATIM_USER_AGENT",
	"nominatim.countryCodes": "NOMINATIM_COUNTRY_CODES",
	"admin.email":            "ADMIN_EMAIL",
	"admin.password":         "ADMIN_PASSWORD",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.trustedProxies", []string{})
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.dbName", "pickups")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.expiration", 24*time.Hour)
	v.SetDefault("s3.bucket", "pickup-photos")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("nominatim.baseURL", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.userAgent", "30MinPickup/1.0")
	v.SetDefault("nominatim.rateLimit", 1.0)
	v.SetDefault("nominatim.timeout", 10*time.Second)
	v.SetDefault("geocode.cacheTTL", 24*time.Hour)
	v.SetDefault("upload.maxBytes", int64(10<<20))
	v.SetDefault("rateLimit.submitLimit", 10)
	v.SetDefault("rateLimit.submitPeriod", time.Hour)
	v.SetDefault("admin.name", "Admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads config.yaml from path and overlays environment variables.
// A missing file is not an error; defaults and env are used instead.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return
		}
	}

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
