// Package azure configures the OpenAI-compatible adapter for Azure
// OpenAI deployments. Azure speaks the same wire protocol behind
// deployment-scoped URLs and an api-version query parameter, so the
// whole normalization layer is shared with the openai package.
package azure

import (
	oai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/modelmux/internal/provider/openai"
)

// DefaultAPIVersion is used when the config leaves the version empty.
const DefaultAPIVersion = "2024-06-01"

// Config holds Azure-specific connection settings.
type Config struct {
	openai.Config
	Endpoint   string // https://<resource>.openai.azure.com
	APIVersion string
}

// New creates a provider adapter for an Azure OpenAI resource.
// Model names are passed through as deployment names unchanged;
// deployments are expected to be named after the models they serve.
func New(cfg *Config) *openai.Client {
	clientCfg := oai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	} else {
		clientCfg.APIVersion = DefaultAPIVersion
	}
	return openai.NewWithClientConfig(&cfg.Config, clientCfg)
}
