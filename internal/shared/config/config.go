package config

import (
	"os"
	"strings"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	CORSAllowOrigin []string

	// Inference backends.
	InferenceBackend string // "auto", "remote" or "local"
	RemoteInferURL   string
	RemoteInferToken string
	LocalInferURL    string
	LocalInferModel  string

	// Open-data registries (Socrata). Overridable for tests and mirrors.
	CUMBaseURL    string
	SISMEDBaseURL string
	SocrataToken  string

	UploadDir string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	return Config{
		Port:             getEnv("PORT", "8080"),
		Env:              normalizeEnv(getEnv("ENV", "dev")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		InferenceBackend: getEnv("INFERENCE_BACKEND", "auto"),
		RemoteInferURL:   getEnv("REMOTE_INFERENCE_URL", ""),
		RemoteInferToken: getEnv("REMOTE_INFERENCE_TOKEN", ""),
		LocalInferURL:    getEnv("LOCAL_INFERENCE_URL", "http://localhost:11434"),
		LocalInferModel:  getEnv("LOCAL_INFERENCE_MODEL", "medgemma"),
		CUMBaseURL:       getEnv("CUM_BASE_URL", "https://www.datos.gov.co/resource/i7cb-raxc.json"),
		SISMEDBaseURL:    getEnv("SISMED_BASE_URL", "https://www.datos.gov.co/resource/3he6-m866.json"),
		SocrataToken:     getEnv("SOCRATA_APP_TOKEN", ""),
		UploadDir:        getEnv("UPLOAD_DIR", "./data/uploads"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
