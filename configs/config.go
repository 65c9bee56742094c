package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicBaseURL string
}

type Instagram struct {
	GraphBaseURL  string
	UploadBaseURL string
	AccessToken   string
	// Accounts maps an account ref to its business account ID.
	Accounts map[string]string
}

type TwitterAccount struct {
	AccessToken  string
	AccessSecret string
}

type Twitter struct {
	APIBaseURL     string
	MediaUploadURL string
	ConsumerKey    string
	ConsumerSecret string
	Accounts       map[string]TwitterAccount
}

type Publish struct {
	// Slots are daily publish times ("15:04") in Timezone.
	Slots    []string
	Timezone string

	MaxConcurrent    int
	TransientRetries uint64
	PollInterval     time.Duration
	MaxPolls         uint64
	ChunkSize        int
}

type Config struct {
	PostgresURI string
	RedisURI    string
	ListenAddr  string
	APIKey      string
	CronSpec    string
	R2          R2
	Instagram   Instagram
	Twitter     Twitter
	Publish     Publish
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "127.0.0.1:6379"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		APIKey:      getEnv("API_KEY", ""),
		CronSpec:    getEnv("PUBLISH_CRON", "@every 1h0m0s"),
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", "ready_to_publish"),
			PublicBaseURL: getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		Instagram: Instagram{
			GraphBaseURL:  getEnv("INSTAGRAM_GRAPH_BASE_URL", "https://graph.facebook.com/v22.0"),
			UploadBaseURL: getEnv("INSTAGRAM_UPLOAD_BASE_URL", "https://rupload.facebook.com/ig-api-upload"),
			AccessToken:   getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
			Accounts:      getEnvMap("INSTAGRAM_ACCOUNTS"),
		},
		Twitter: Twitter{
			APIBaseURL:     getEnv("TWITTER_API_BASE_URL", "https://api.twitter.com/2"),
			MediaUploadURL: getEnv("TWITTER_MEDIA_UPLOAD_URL", "https://upload.twitter.com/1.1/media/upload.json"),
			ConsumerKey:    getEnv("TWITTER_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("TWITTER_CONSUMER_SECRET", ""),
			Accounts:       loadTwitterAccounts(),
		},
		Publish: Publish{
			Slots:            getEnvList("PUBLISH_SLOTS", "09:00,14:00,19:00"),
			Timezone:         getEnv("PUBLISH_TIMEZONE", "Asia/Kolkata"),
			MaxConcurrent:    getEnvInt("PUBLISH_MAX_CONCURRENT", 4),
			TransientRetries: uint64(getEnvInt("PUBLISH_TRANSIENT_RETRIES", 3)),
			PollInterval:     getEnvDuration("PUBLISH_POLL_INTERVAL", 5*time.Second),
			MaxPolls:         uint64(getEnvInt("PUBLISH_MAX_POLLS", 120)),
			ChunkSize:        getEnvInt("PUBLISH_CHUNK_SIZE", 4*1024*1024),
		},
	}
}

// loadTwitterAccounts reads TWITTER_ACCOUNT_REFS ("account_1,account_2") and
// the per-ref envs TWITTER_ACCESS_TOKEN_<REF> / TWITTER_ACCESS_SECRET_<REF>.
func loadTwitterAccounts() map[string]TwitterAccount {
	accounts := make(map[string]TwitterAccount)
	for _, ref := range getEnvList("TWITTER_ACCOUNT_REFS", "") {
		suffix := strings.ToUpper(ref)
		accounts[ref] = TwitterAccount{
			AccessToken:  getEnv("TWITTER_ACCESS_TOKEN_"+suffix, ""),
			AccessSecret: getEnv("TWITTER_ACCESS_SECRET_"+suffix, ""),
		}
	}
	return accounts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvMap parses "ref1=id1,ref2=id2" style env values.
func getEnvMap(key string) map[string]string {
	m := make(map[string]string)
	for _, pair := range getEnvList(key, "") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return m
}
