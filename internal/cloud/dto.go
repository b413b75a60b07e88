package cloud

import (
	"encoding/json"

	"github.com/starford/chatsync/internal/models"
)

// ConversationDTO is one conversation as the cloud returns it. Only ID is
// required; the reconciler fills in defaults for the rest.
type ConversationDTO struct {
	ID          string          `json:"id"`
	Title       *string         `json:"title,omitempty"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Usage       json.RawMessage `json:"usage,omitempty"`
	AssistantID *string         `json:"assistantId,omitempty"`
	IsPinned    bool            `json:"isPinned"`
	IsDeleted   bool            `json:"isDeleted"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// Bundle is the result of FetchAll. Each section carries its own error;
// a section whose error is set has no data.
type Bundle struct {
	Providers    []models.ProviderConfig
	ProvidersErr error

	Assistants    []models.AssistantConfig
	AssistantsErr error

	Settings    *models.SettingsDocument
	SettingsErr error
}

// Usable reports whether at least one section decoded.
func (b *Bundle) Usable() bool {
	return b.ProvidersErr == nil || b.AssistantsErr == nil || b.SettingsErr == nil
}

// PublicProvider describes the shared provider offered to logged-in users.
type PublicProvider struct {
	Enabled        bool     `json:"enabled"`
	APIKey         string   `json:"apiKey"`
	BaseURL        string   `json:"baseUrl"`
	Models         []string `json:"models"`
	DailyLimit     int      `json:"dailyLimit"`
	UsedToday      int      `json:"usedToday"`
	RemainingToday int      `json:"remainingToday"`
}

type providersBody struct {
	Providers []models.ProviderConfig `json:"providers"`
}

type assistantsBody struct {
	Assistants []models.AssistantConfig `json:"assistants"`
}

type settingsBody struct {
	Settings models.SettingsDocument `json:"settings"`
}

// configEntry wraps one provider or assistant in the /sync/all payload.
type configEntry struct {
	Config json.RawMessage `json:"config"`
}

type allPayload struct {
	Providers  json.RawMessage `json:"providers"`
	Assistants json.RawMessage `json:"assistants"`
	Settings   json.RawMessage `json:"settings"`
}
