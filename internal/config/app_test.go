package config

import (
	"strings"
	"testing"

	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/prompt"
)

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	if len(cfg.NewsSources) != len(DefaultNewsSources) {
		t.Fatalf("news sources = %d", len(cfg.NewsSources))
	}
	if cfg.Prompts == nil || cfg.CustomFields == nil {
		t.Fatal("collections should be non-nil")
	}
	cfg.NewsSources[0].Name = "changed"
	if DefaultNewsSources[0].Name == "changed" {
		t.Fatal("defaults share backing array")
	}
}

func TestWithDefaultsKeepsExisting(t *testing.T) {
	cfg := (&AppConfig{NewsSources: []NewsSource{{Name: "Propio", URL: "https://x/feed"}}}).WithDefaults()
	if len(cfg.NewsSources) != 1 || cfg.NewsSources[0].Name != "Propio" {
		t.Fatalf("news sources overwritten: %+v", cfg.NewsSources)
	}
}

func TestPromptSetUsesOverrides(t *testing.T) {
	cfg := &AppConfig{Prompts: map[string]string{string(prompt.Leadership): "Autoridades de {{name}}"}}
	set := cfg.PromptSet()
	got := set.Render(prompt.Leadership, map[string]any{"name": "UOM"})
	if got != "Autoridades de UOM" {
		t.Fatalf("Render = %q", got)
	}
	var nilCfg *AppConfig
	if nilCfg.PromptSet().Get(prompt.Leadership) != prompt.Defaults[prompt.Leadership] {
		t.Fatal("nil config should use defaults")
	}
}

func TestCheck(t *testing.T) {
	cfg := &AppConfig{
		Prompts: map[string]string{
			"bogus":                   "x",
			string(prompt.Leadership): "sin marcador",
			string(prompt.Events):     "",
		},
		CustomFields: model.Extensions{
			{Key: "cuit", Label: "CUIT", Section: model.SectionRoot, Type: model.FieldText},
			{Key: "cuit", Label: "CUIT", Section: model.SectionRoot, Type: model.FieldText},
			{Key: "", Section: model.SectionProfile, Type: model.FieldText},
			{Key: "x", Section: "otra", Type: model.FieldText},
			{Key: "y", Section: model.SectionEvents, Type: "color"},
		},
	}
	problems := cfg.Check()
	joined := strings.Join(problems, "\n")
	for _, want := range []string{
		"prompts.bogus: unknown template key",
		"prompts.comision: placeholder {{name}} missing",
		"duplicate field root.cuit",
		"customFields[2]: empty key",
		`unknown section "otra"`,
		`unknown type "color"`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing problem %q in:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "acciones") {
		t.Errorf("blank override should be ignored:\n%s", joined)
	}
	if len(DefaultAppConfig().Check()) != 0 {
		t.Error("default config should have no problems")
	}
}
