// Package models defines the domain types for chatsync.
package models

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// PublicProviderID is the reserved identifier of the shared provider that is
// injected after login.
const PublicProviderID = "00000000-0000-0000-0000-000000000001"

// Provider families.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGoogle = "google"
)

// Modality is an input modality a model accepts.
type Modality string

// Known modalities.
const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// Ability is a capability a model advertises.
type Ability string

// Known abilities.
const (
	AbilityTool      Ability = "tool"
	AbilityReasoning Ability = "reasoning"
)

// SettingsDocument is the full local configuration. It is replaced as a
// whole on every update; callers must treat values as immutable.
type SettingsDocument struct {
	// Init marks a freshly created document that no user action has touched.
	Init        bool              `json:"init"`
	Providers   []ProviderConfig  `json:"providers"`
	Assistants  []AssistantConfig `json:"assistants"`
	Display     DisplaySettings   `json:"display"`
	WebDav      WebDavConfig      `json:"webDavConfig"`
	Preferences map[string]any    `json:"preferences,omitempty"`
}

// DisplaySettings holds presentation preferences that travel with the
// document.
type DisplaySettings struct {
	Theme    string `json:"theme,omitempty"`
	Locale   string `json:"locale,omitempty"`
	FontSize int    `json:"fontSize,omitempty"`
}

// WebDavConfig holds the connection parameters of the backup target.
type WebDavConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Path     string `json:"path"`
}

// Configured reports whether a WebDAV URL is set.
func (c WebDavConfig) Configured() bool {
	return c.URL != ""
}

// ProviderConfig identifies one AI backend.
type ProviderConfig struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	BaseURL string  `json:"baseUrl"`
	APIKey  string  `json:"apiKey"`
	Enabled bool    `json:"enabled"`
	Models  []Model `json:"models"`
}

// Validate validates a single provider entry.
func (p ProviderConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required, is.UUID),
		validation.Field(&p.Type, validation.In(ProviderOpenAI, ProviderClaude, ProviderGoogle)),
	)
}

// Model describes one model offered by a provider.
type Model struct {
	ModelID         string     `json:"modelId"`
	DisplayName     string     `json:"displayName"`
	InputModalities []Modality `json:"inputModalities"`
	Abilities       []Ability  `json:"abilities"`
}

// HasModality reports whether m accepts the given input modality.
func (m Model) HasModality(want Modality) bool {
	for _, got := range m.InputModalities {
		if got == want {
			return true
		}
	}
	return false
}

// HasAbility reports whether m advertises the given ability.
func (m Model) HasAbility(want Ability) bool {
	for _, got := range m.Abilities {
		if got == want {
			return true
		}
	}
	return false
}

// AssistantConfig is a named behaviour profile.
type AssistantConfig struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	ChatModelID  string   `json:"chatModelId,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// Validate checks document-level invariants.
func (d *SettingsDocument) Validate() error {
	seen := make(map[string]struct{}, len(d.Providers))
	for i, p := range d.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("providers[%d]: duplicate provider id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// FindProvider returns the provider with the given id.
func (d *SettingsDocument) FindProvider(id string) (ProviderConfig, bool) {
	for _, p := range d.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Clone returns a copy whose slices and maps can be modified without
// affecting d.
func (d SettingsDocument) Clone() SettingsDocument {
	out := d
	if d.Providers != nil {
		out.Providers = make([]ProviderConfig, len(d.Providers))
		for i, p := range d.Providers {
			p.Models = append([]Model(nil), p.Models...)
			out.Providers[i] = p
		}
	}
	if d.Assistants != nil {
		out.Assistants = append([]AssistantConfig(nil), d.Assistants...)
	}
	if d.Preferences != nil {
		out.Preferences = make(map[string]any, len(d.Preferences))
		for k, v := range d.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

// NewDefaultSettings returns the document used before anything was saved.
func NewDefaultSettings() SettingsDocument {
	return SettingsDocument{
		Init:       true,
		Providers:  []ProviderConfig{},
		Assistants: []AssistantConfig{},
		Display: DisplaySettings{
			Theme:  "system",
			Locale: "en",
		},
	}
}
