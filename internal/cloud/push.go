package cloud

import (
	"context"
	"net/http"

	"github.com/starford/chatsync/internal/models"
)

// Endpoint paths relative to the base URL.
const (
	PathProviders      = "/sync/providers"
	PathAssistants     = "/sync/assistants"
	PathSettings       = "/sync/settings"
	PathConversations  = "/sync/conversations"
	PathAll            = "/sync/all"
	PathPublicProvider = "/public-provider"
)

// PushProviders uploads the provider list.
func (c *Client) PushProviders(ctx context.Context, token string, providers []models.ProviderConfig) error {
	if providers == nil {
		providers = []models.ProviderConfig{}
	}
	_, err := c.do(ctx, http.MethodPost, PathProviders, token, providersBody{Providers: providers})
	return err
}

// PushAssistants uploads the assistant list.
func (c *Client) PushAssistants(ctx context.Context, token string, assistants []models.AssistantConfig) error {
	if assistants == nil {
		assistants = []models.AssistantConfig{}
	}
	_, err := c.do(ctx, http.MethodPost, PathAssistants, token, assistantsBody{Assistants: assistants})
	return err
}

// PushSettings uploads the whole settings document.
func (c *Client) PushSettings(ctx context.Context, token string, doc models.SettingsDocument) error {
	_, err := c.do(ctx, http.MethodPost, PathSettings, token, settingsBody{Settings: doc})
	return err
}

// PushSummary holds the outcome of each sub-document upload.
type PushSummary struct {
	Providers  error
	Assistants error
	Settings   error
}

// OK reports whether every upload succeeded.
func (s PushSummary) OK() bool {
	return s.Providers == nil && s.Assistants == nil && s.Settings == nil
}

// Failed returns the number of failed uploads.
func (s PushSummary) Failed() int {
	n := 0
	for _, err := range []error{s.Providers, s.Assistants, s.Settings} {
		if err != nil {
			n++
		}
	}
	return n
}

// PushAll uploads providers, assistants and settings in that order. A
// failure of one upload does not stop the others.
func (c *Client) PushAll(ctx context.Context, token string, doc models.SettingsDocument) PushSummary {
	return PushSummary{
		Providers:  c.PushProviders(ctx, token, doc.Providers),
		Assistants: c.PushAssistants(ctx, token, doc.Assistants),
		Settings:   c.PushSettings(ctx, token, doc),
	}
}
