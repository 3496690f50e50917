package llm

import (
	"fmt"
	"strings"

	"github.com/rashenal/navigator/pkg/config"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
}

// LoadConfigPrefixed loads provider configuration from <PREFIX>_LLM_* env
// vars, falling back to the unprefixed LLM_* counterparts when unset.
func LoadConfigPrefixed(prefix string) Config {
	key := func(suffix string) string {
		if prefix == "" {
			return "LLM_" + suffix
		}
		return prefix + "_LLM_" + suffix
	}
	return Config{
		Provider:  config.GetEnv(key("PROVIDER"), config.GetEnv("LLM_PROVIDER", "openai")),
		Model:     config.GetEnv(key("MODEL"), config.GetEnv("LLM_MODEL", "")),
		APIKey:    config.GetEnv(key("API_KEY"), config.GetEnv("LLM_API_KEY", "")),
		APIURL:    config.GetEnv(key("API_URL"), config.GetEnv("LLM_API_URL", "")),
		MaxTokens: config.GetEnvInt(key("MAX_TOKENS"), config.GetEnvInt("LLM_MAX_TOKENS", 0)),
	}
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
