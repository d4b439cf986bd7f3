package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles loads KEY=VALUE pairs from the first-party .env locations
// without overriding variables already present in the environment. The
// data directory's .env is read first, so it wins over the others.
func LoadEnvFiles(dataDir string) error {
	var envPaths []string
	if dataDir != "" {
		envPaths = append(envPaths, filepath.Join(dataDir, ".env"))
	}
	envPaths = append(envPaths, "./.env")

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".docdesk", ".env"),
			filepath.Join(home, ".config", "docdesk", ".env"),
		)
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = strings.Trim(value, `"`)
		} else if strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
			value = strings.Trim(value, `'`)
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

var envAliases = map[string][]string{
	"DOCDESK_SECURITY_JWT_SECRET":   {"DOCDESK_JWT_SECRET", "JWT_SECRET"},
	"DOCDESK_BLOB_BUCKET":           {"GCS_BUCKET"},
	"DOCDESK_BLOB_CREDENTIALS_FILE": {"GOOGLE_APPLICATION_CREDENTIALS"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}
