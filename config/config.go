// config/config.go
package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings is the immutable auth configuration handed to constructors.
// It is built once at startup; request handling never mutates it.
type Settings struct {
	Scheme              string            // Authorization scheme, default "Bearer"
	Issuer              string            // JWT issuer
	JWTAlgorithm        string            // signing algorithm, default HS256
	SecretKey           string            // JWT signing secret
	PartnerKey          string            // partner/API symmetric cipher key (32 bytes)
	SessionTimeout      time.Duration     // session and token TTL
	CredentialsRequired bool              // reject requests without a session
	SecureCookies       bool              // cookie-based session fallback
	DefaultAllow        bool              // NO_MATCH interpretation, default deny
	SessionCookie       string            // cookie name for secure-cookie mode
	ExcludeList         []string          // paths bypassing the auth middleware
	AllowedHosts        []string          // host allow-list for the authz backend
	Backends            []string          // configured backend names, in chain order
	UserMapping         map[string]string // session payload key -> user record column
}

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration
	Postgres      DatabaseConfiguration
	Redis         RedisConfiguration
	Elasticsearch ElasticsearchConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port string
}

// DatabaseConfiguration stores data for database connection
type DatabaseConfiguration struct {
	DSN string
}

// RedisConfiguration stores data for Redis connection
type RedisConfiguration struct {
	Addr            string
	DefaultCacheTTL string
}

// ElasticsearchConfiguration stores data for Elasticsearch connection
type ElasticsearchConfiguration struct {
	URL string
}

var config *Configuration

// defaultExcluded are the routes that never run authentication.
var defaultExcluded = []string{
	"/static/",
	"/api/v1/login",
	"/api/v1/logout",
	"/login",
	"/logout",
	"/signin",
	"/signout",
	"/login/callback",
}

// DefaultUserMapping maps session payload keys to user record columns.
// The password column is never part of a session payload.
var DefaultUserMapping = map[string]string{
	"user_id":    "user_id",
	"username":   "username",
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"enabled":    "is_active",
	"superuser":  "is_superuser",
	"last_login": "last_login",
	"title":      "title",
}

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv() // read in environment variables that match

	// Set default configurations
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("postgres.dsn", "postgres://localhost:5432/gatekeeper")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("elasticsearch.url", "http://localhost:9200")
	viper.SetDefault("redis.defaultCacheTTL", "10m")

	viper.SetDefault("auth.scheme", "Bearer")
	viper.SetDefault("auth.issuer", "urn:gatekeeper")
	viper.SetDefault("auth.jwtAlgorithm", "HS256")
	viper.SetDefault("auth.sessionTimeout", "3600s")
	viper.SetDefault("auth.credentialsRequired", true)
	viper.SetDefault("auth.secureCookies", true)
	viper.SetDefault("auth.defaultAllow", false)
	viper.SetDefault("auth.sessionCookie", "gatekeeper_session")
	viper.SetDefault("auth.allowedHosts", []string{"localhost*"})
	viper.SetDefault("auth.backends", []string{"basic", "apikey", "partner"})

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	err := viper.Unmarshal(&config)
	if err != nil {
		return err
	}

	return nil
}

// loadUserMapping decodes auth.userMapping straight from the config
// file. viper lower-cases nested map keys, which would silently rename
// the configured session payload fields, so this section bypasses it.
func loadUserMapping() map[string]string {
	path := viper.ConfigFileUsed()
	if path == "" {
		return DefaultUserMapping
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultUserMapping
	}
	var doc struct {
		Auth struct {
			UserMapping map[string]string `yaml:"userMapping"`
		} `yaml:"auth"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Auth.UserMapping) == 0 {
		return DefaultUserMapping
	}
	return doc.Auth.UserMapping
}

// AuthSettings assembles the immutable Settings struct from viper.
func AuthSettings() *Settings {
	return &Settings{
		Scheme:              viper.GetString("auth.scheme"),
		Issuer:              viper.GetString("auth.issuer"),
		JWTAlgorithm:        viper.GetString("auth.jwtAlgorithm"),
		SecretKey:           viper.GetString("auth.secretKey"),
		PartnerKey:          viper.GetString("auth.partnerKey"),
		SessionTimeout:      viper.GetDuration("auth.sessionTimeout"),
		CredentialsRequired: viper.GetBool("auth.credentialsRequired"),
		SecureCookies:       viper.GetBool("auth.secureCookies"),
		DefaultAllow:        viper.GetBool("auth.defaultAllow"),
		SessionCookie:       viper.GetString("auth.sessionCookie"),
		ExcludeList:         append(append([]string{}, defaultExcluded...), viper.GetStringSlice("auth.routesExcluded")...),
		AllowedHosts:        viper.GetStringSlice("auth.allowedHosts"),
		Backends:            viper.GetStringSlice("auth.backends"),
		UserMapping:         loadUserMapping(),
	}
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration retrieves a duration value from the configuration
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
