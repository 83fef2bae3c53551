package config

import "os"

// SecretSource represents where a secret comes from.
type SecretSource string

const (
	SecretSourceEnv    SecretSource = "env"
	SecretSourceConfig SecretSource = "config"
	SecretSourceNone   SecretSource = "none"
)

// SecretStatus represents the status of a configured secret.
type SecretStatus struct {
	Name   string       `json:"name"`
	Source SecretSource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "tok...abc"
}

// CheckSecrets returns the status of every optional secret.
func CheckSecrets(cfg *Config) []SecretStatus {
	return []SecretStatus{
		checkSecret("Remote API Token", cfg.Remote.APIToken, "FINMARKET_REMOTE_API_TOKEN"),
		checkSecret("Redis Password", cfg.Storage.RedisPassword, "FINMARKET_STORAGE_REDIS_PASSWORD"),
	}
}

// checkSecret checks if a secret is set and where it came from.
func checkSecret(name, value, envVar string) SecretStatus {
	status := SecretStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		if os.Getenv(envVar) != "" {
			status.Source = SecretSourceEnv
		} else {
			status.Source = SecretSourceConfig
		}
		status.Masked = maskSecret(value)
	} else {
		status.Source = SecretSourceNone
	}

	return status
}

// maskSecret masks a secret for display, showing only first 3 and last 3 chars.
func maskSecret(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
