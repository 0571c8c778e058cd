package internal

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LocalConfig struct {
	BaseDir   string `yaml:"baseDir"`
	PublicUrl string `yaml:"publicUrl"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyId     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Bucket          string `yaml:"bucket"`
	PublicUrl       string `yaml:"publicUrl"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
}

type StorageConfig struct {
	Type  string      `yaml:"type"` // "local" or "s3"
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	JournalMode   string `yaml:"journal_mode"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	Synchronous   string `yaml:"synchronous"`
}

type UploadConfig struct {
	MaxUploadBytes   int64 `yaml:"maxUploadBytes"`
	MaxFilesPerBatch int   `yaml:"maxFilesPerBatch"`
}

type Config struct {
	ListenAddr string         `yaml:"listenAddr"`
	Database   DatabaseConfig `yaml:"database"`
	Storage    StorageConfig  `yaml:"storage"`
	Upload     UploadConfig   `yaml:"upload"`
}

// GetConfig loads config.yaml if present, then lets environment variables
// override every field. The environment is authoritative so deployments can
// run without a config file at all.
func GetConfig() (Config, error) {
	var config Config

	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("unable to unmarshal yaml: %v", err)
		}
	}

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	config.ListenAddr = getEnv("LISTEN_ADDR", defaultStr(config.ListenAddr, ":8080"))
	config.Database.Path = getEnv("DATABASE_PATH", defaultStr(config.Database.Path, "media.db"))

	config.Storage.Type = getEnv("STORAGE_BACKEND", defaultStr(config.Storage.Type, "local"))
	config.Storage.Local.BaseDir = getEnv("LOCAL_BASE_DIR", defaultStr(config.Storage.Local.BaseDir, "media"))
	config.Storage.Local.PublicUrl = getEnv("LOCAL_PUBLIC_URL", config.Storage.Local.PublicUrl)
	config.Storage.S3.Region = getEnv("S3_REGION", config.Storage.S3.Region)
	config.Storage.S3.Endpoint = getEnv("S3_ENDPOINT", config.Storage.S3.Endpoint)
	config.Storage.S3.AccessKeyId = getEnv("S3_ACCESS_KEY_ID", config.Storage.S3.AccessKeyId)
	config.Storage.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", config.Storage.S3.SecretAccessKey)
	config.Storage.S3.Bucket = getEnv("S3_BUCKET", config.Storage.S3.Bucket)
	config.Storage.S3.PublicUrl = getEnv("S3_PUBLIC_URL", config.Storage.S3.PublicUrl)
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		config.Storage.S3.UsePathStyle = v == "true"
	}

	config.Upload.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", defaultInt64(config.Upload.MaxUploadBytes, 20*1024*1024))
	config.Upload.MaxFilesPerBatch = int(getEnvInt64("MAX_FILES_PER_BATCH", defaultInt64(int64(config.Upload.MaxFilesPerBatch), 10)))

	if config.Storage.Type != "local" && config.Storage.Type != "s3" {
		return Config{}, fmt.Errorf("unknown storage backend %q", config.Storage.Type)
	}
	if config.Storage.Type == "s3" && config.Storage.S3.Bucket == "" {
		return Config{}, fmt.Errorf("s3 storage selected but S3_BUCKET is empty")
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func defaultStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func defaultInt64(v, fallback int64) int64 {
	if v != 0 {
		return v
	}
	return fallback
}
