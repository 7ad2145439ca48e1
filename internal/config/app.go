package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/prompt"
)

// NewsSource is an RSS feed the dashboard reads news from.
type NewsSource struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// AppConfig is the deployment configuration stored next to the entities in
// the document store. It is shared by every client of the dataset.
type AppConfig struct {
	GeminiAPIKey    string            `json:"geminiApiKey,omitempty"`
	Prompts         map[string]string `json:"prompts"`
	NewsSources     []NewsSource      `json:"newsSources"`
	CustomFields    model.Extensions  `json:"customFields"`
	EventCategories []string          `json:"eventCategories,omitempty"`
}

// DefaultNewsSources are used when the stored config lists none.
var DefaultNewsSources = []NewsSource{
	{Name: "InfoGremiales", URL: "https://www.infogremiales.com.ar/feed/"},
	{Name: "Sonido Gremial", URL: "https://sonidogremial.com.ar/feed/"},
	{Name: "Identidad Sindical", URL: "https://www.identidadsindical.ar/rss/"},
	{Name: "Mundo Gremial", URL: "https://mundogremial.com/feed/"},
	{Name: "Gestión Sindical", URL: "https://gestionsindical.com/feed/"},
}

// DefaultAppConfig is the config used when the store holds none.
func DefaultAppConfig() *AppConfig {
	return (&AppConfig{}).WithDefaults()
}

// WithDefaults fills absent collections in place and returns c.
func (c *AppConfig) WithDefaults() *AppConfig {
	if c.Prompts == nil {
		c.Prompts = map[string]string{}
	}
	if len(c.NewsSources) == 0 {
		c.NewsSources = append([]NewsSource(nil), DefaultNewsSources...)
	}
	if c.CustomFields == nil {
		c.CustomFields = model.Extensions{}
	}
	return c
}

// PromptSet returns the templates with this config's overrides applied.
func (c *AppConfig) PromptSet() *prompt.Set {
	if c == nil {
		return prompt.NewSet(nil)
	}
	return prompt.NewSet(c.Prompts)
}

// Check reports problems that would make the config misbehave: unknown
// prompt keys, overrides that drop a placeholder the default relies on,
// and malformed custom fields. It never modifies c.
func (c *AppConfig) Check() []string {
	var problems []string

	keys := make([]string, 0, len(c.Prompts))
	for k := range c.Prompts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	known := map[prompt.Key]bool{}
	for _, k := range prompt.Keys {
		known[k] = true
	}
	for _, k := range keys {
		tmpl := c.Prompts[k]
		if !known[prompt.Key(k)] {
			problems = append(problems, fmt.Sprintf("prompts.%s: unknown template key", k))
			continue
		}
		if strings.TrimSpace(tmpl) == "" {
			continue
		}
		have := map[string]bool{}
		for _, p := range prompt.Placeholders(tmpl) {
			have[p] = true
		}
		for _, p := range prompt.Placeholders(prompt.Defaults[prompt.Key(k)]) {
			if !have[p] {
				problems = append(problems, fmt.Sprintf("prompts.%s: placeholder {{%s}} missing", k, p))
			}
		}
	}

	seen := map[string]bool{}
	for i, f := range c.CustomFields {
		switch {
		case strings.TrimSpace(f.Key) == "":
			problems = append(problems, fmt.Sprintf("customFields[%d]: empty key", i))
			continue
		case !validSection(f.Section):
			problems = append(problems, fmt.Sprintf("customFields[%d] %s: unknown section %q", i, f.Key, f.Section))
		case !validType(f.Type):
			problems = append(problems, fmt.Sprintf("customFields[%d] %s: unknown type %q", i, f.Key, f.Type))
		}
		id := string(f.Section) + "." + f.Key
		if seen[id] {
			problems = append(problems, fmt.Sprintf("customFields[%d]: duplicate field %s", i, id))
		}
		seen[id] = true
	}
	return problems
}

func validSection(s model.FieldSection) bool {
	switch s {
	case model.SectionRoot, model.SectionProfile, model.SectionEvents, model.SectionAgreements:
		return true
	}
	return false
}

func validType(t model.FieldType) bool {
	switch t {
	case model.FieldText, model.FieldTextarea, model.FieldNumber, model.FieldDate:
		return true
	}
	return false
}
