package llm

import "fmt"

// ClientFor builds the configured provider. Unknown names are an error so a
// typo in the config fails loudly at startup rather than at first prompt.
func ClientFor(provider, endpoint, apiKey, model string) (CompletionClient, error) {
	switch provider {
	case "ollama":
		return NewOllamaClient(endpoint, model), nil
	case "openai":
		return NewOpenAIClient(apiKey, model), nil
	case "lmstudio":
		if endpoint == "" {
			endpoint = "http://localhost:1234/v1"
		}
		return NewCompatibleClient("lmstudio", endpoint, apiKey, model), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want ollama, openai or lmstudio)", provider)
	}
}
