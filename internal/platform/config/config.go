package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// 実行環境（"development" / "production" など、/health で返却される）
	Environment string

	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + Completion + Moderation）
	OpenAI OpenAIConfig

	// ベクトルコレクション設定
	Collection CollectionConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// 検索設定
	Retrieval RetrievalConfig

	// チャット設定
	Chat ChatConfig

	// 外部ソース設定
	Sources SourcesConfig

	// HTTPサーバ設定
	HTTP HTTPConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	CompletionModel    string
	Temperature        float64
	MaxTokens          int
	ModerationEnabled  bool
}

// CollectionConfig はベクトルコレクション設定
type CollectionConfig struct {
	Name string
}

// ChunkingConfig はチャンク分割パラメータ
type ChunkingConfig struct {
	TargetWords int
	MaxWords    int
	MinWords    int
}

// RetrievalConfig は検索パラメータ
type RetrievalConfig struct {
	TopK     int
	MinScore float64
}

// ChatConfig はチャットエンドポイントの設定
type ChatConfig struct {
	// MessageLimit はユーザーあたりのメッセージ数のソフト上限（0で無効）
	MessageLimit int

	// OwnerName はペルソナとして回答する本人の名前。
	// 未設定の場合は generation 側のデフォルトが使われる
	OwnerName string
}

// SourcesConfig は外部ドキュメントソースの設定
type SourcesConfig struct {
	GitHubUser    string
	GitHubToken   string
	MediumFeedURL string
}

// HTTPConfig はHTTPサーバ設定
type HTTPConfig struct {
	Port int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "personarag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "personarag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			CompletionModel:    getEnv("OPENAI_COMPLETION_MODEL", "gpt-4o-mini"),
			Temperature:        getEnvAsFloat("OPENAI_TEMPERATURE", 0.7),
			MaxTokens:          getEnvAsInt("OPENAI_MAX_TOKENS", 500),
			ModerationEnabled:  getEnvAsBool("OPENAI_MODERATION_ENABLED", true),
		},
		Collection: CollectionConfig{
			Name: getEnv("VECTOR_COLLECTION", "personal_docs"),
		},
		Chunking: ChunkingConfig{
			TargetWords: getEnvAsInt("CHUNK_TARGET_WORDS", 100),
			MaxWords:    getEnvAsInt("CHUNK_MAX_WORDS", 150),
			MinWords:    getEnvAsInt("CHUNK_MIN_WORDS", 15),
		},
		Retrieval: RetrievalConfig{
			TopK:     getEnvAsInt("RETRIEVAL_TOP_K", 3),
			MinScore: getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.3),
		},
		Chat: ChatConfig{
			MessageLimit: getEnvAsInt("CHAT_MESSAGE_LIMIT", 50),
			OwnerName:    getEnv("OWNER_NAME", ""),
		},
		Sources: SourcesConfig{
			GitHubUser:    getEnv("GITHUB_USERNAME", ""),
			GitHubToken:   getEnv("GITHUB_API_TOKEN", ""),
			MediumFeedURL: getEnv("MEDIUM_FEED_URL", ""),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
