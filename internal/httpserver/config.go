package httpserver

import "time"

// Config carries the HTTP surface settings.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Defaulted fills unset fields.
func (config Config) Defaulted() Config {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	return config
}
