package investigate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/extract"
	"github.com/hurttlocker/gremio/internal/llm"
	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/prompt"
)

type call struct {
	prompt string
	opts   llm.CompletionOpts
}

// fakeProvider answers every completion with reply (or err) and records the
// calls it received.
type fakeProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []call
}

func (f *fakeProvider) Name() string { return "fake/model" }

func (f *fakeProvider) Complete(_ context.Context, p string, opts llm.CompletionOpts) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{prompt: p, opts: opts})
	return f.reply, f.err
}

func (f *fakeProvider) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("provider was not called")
	}
	return f.calls[len(f.calls)-1]
}

var fixedNow = time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC)

func newTestService(reply string, err error, app *config.AppConfig) (*Service, *fakeProvider) {
	fp := &fakeProvider{reply: reply, err: err}
	s := New(fp, app, nil)
	s.now = func() time.Time { return fixedNow }
	return s, fp
}

func TestProfile(t *testing.T) {
	reply := "Acá está la auditoría:\n```json\n" + `{
		"nombre": "Unión Obrera Metalúrgica",
		"slug": "UOM",
		"comisionDirectiva": [{"nombre": "Abel Furlán", "cargo": "Secretario General"}],
		"datosBasicos": {"sedePrincipal": "Hipólito Yrigoyen 4265", "sitioWeb": "https://uom.org.ar"},
		"paritarias": {"annual": {"periodo": "Año 2026", "porcentajeAumento": "aprox 85 % anual"}}
	}` + "\n```"
	s, fp := newTestService(reply, nil, nil)

	e, warnings, err := s.Profile(context.Background(), "UOM")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings: %v", warnings)
	}
	if e.Slug != "uom" || e.Agreements["annual"].Increase != "85%" {
		t.Errorf("entity not normalized: slug=%q increase=%q", e.Slug, e.Agreements["annual"].Increase)
	}

	c := fp.last(t)
	if !c.opts.Search {
		t.Error("profile must use search grounding")
	}
	if !strings.Contains(c.opts.System, "2026") || strings.Contains(c.opts.System, "{{currentYear}}") {
		t.Error("system prompt not rendered with the current year")
	}
	if !strings.Contains(c.prompt, `"UOM"`) {
		t.Errorf("user prompt lacks the union name: %q", c.prompt)
	}
}

func TestProfileErrors(t *testing.T) {
	s, _ := newTestService(`{"nombre": "Sin slug"}`, nil, nil)
	_, _, err := s.Profile(context.Background(), "X")
	var inc *model.IncompleteEntityError
	if !errors.As(err, &inc) {
		t.Fatalf("expected IncompleteEntityError, got %v", err)
	}

	if _, _, err := s.Profile(context.Background(), "  "); !errors.As(err, &inc) {
		t.Fatalf("blank name: expected IncompleteEntityError, got %v", err)
	}

	httpErr := &llm.HTTPError{StatusCode: 503, Message: "overloaded"}
	s, _ = newTestService("", httpErr, nil)
	_, _, err = s.Profile(context.Background(), "UOM")
	var up *model.UpstreamError
	if !errors.As(err, &up) || !errors.Is(err, httpErr) {
		t.Fatalf("expected UpstreamError wrapping HTTPError, got %v", err)
	}

	s, _ = newTestService("No encontré información sobre ese gremio.", nil, nil)
	_, _, err = s.Profile(context.Background(), "UOM")
	var none *model.NoStructureFoundError
	if !errors.As(err, &none) {
		t.Fatalf("expected NoStructureFoundError, got %v", err)
	}
}

func TestSections(t *testing.T) {
	ctx := context.Background()

	s, fp := newTestService(`{"comisionDirectiva": [{"nombre": "Ana", "cargo": "Tesorera"}]}`, nil, nil)
	leaders, err := s.Leadership(ctx, "Bancaria")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]model.Leader{{Name: "Ana", Role: "Tesorera"}}, leaders); diff != "" {
		t.Errorf("leaders (-want +got):\n%s", diff)
	}
	if !strings.Contains(fp.last(t).prompt, `"Bancaria"`) {
		t.Error("leadership prompt not rendered with the name")
	}

	s, fp = newTestService(`{"paritarias": {"p1": {"periodo": "Año 2026", "porcentajeAumento": "32,5%"}, "p2": {"porcentajeAumento": "sin datos"}}}`, nil, nil)
	ags, warnings, err := s.Agreements(ctx, "Bancaria")
	if err != nil {
		t.Fatal(err)
	}
	if len(ags) != 1 || ags["p1"].Increase != "32,5%" || len(warnings) != 1 {
		t.Errorf("agreements=%v warnings=%v", ags, warnings)
	}
	if !strings.Contains(fp.last(t).prompt, "2026") {
		t.Error("agreements prompt lacks the year")
	}

	s, _ = newTestService(`{"e1": {"titulo": "Paro", "tipo": "huelga", "fecha": "2026-05-01"}}`, nil, nil)
	events, _, err := s.Events(ctx, "Bancaria")
	if err != nil {
		t.Fatal(err)
	}
	if events["e1"].Category != model.CategoryOther {
		t.Errorf("category not normalized: %q", events["e1"].Category)
	}
}

func TestLogos(t *testing.T) {
	ctx := context.Background()

	s, fp := newTestService(`["https://a/logo.png", 3, "", "https://b/logo.jpg"]`, nil, nil)
	got := s.Logos(ctx, "Asociación Bancaria", model.PlaceholderSlug)
	if diff := cmp.Diff([]string{"https://a/logo.png", "https://b/logo.jpg"}, got); diff != "" {
		t.Errorf("logos (-want +got):\n%s", diff)
	}
	c := fp.last(t)
	if !strings.Contains(c.prompt, "(Asociación Bancaria)") {
		t.Errorf("placeholder slug should fall back to the name: %q", c.prompt)
	}
	if c.opts.Temperature != logoTemperature {
		t.Errorf("temperature = %v", c.opts.Temperature)
	}

	for _, tc := range []struct {
		reply string
		err   error
	}{
		{"no encontré imágenes", nil},
		{`{"logo": "x"}`, nil},
		{"", errors.New("boom")},
	} {
		s, _ := newTestService(tc.reply, tc.err, nil)
		if got := s.Logos(ctx, "X", "x"); got == nil || len(got) != 0 {
			t.Errorf("reply %q: expected empty list, got %v", tc.reply, got)
		}
	}
}

func TestAnalyzeLink(t *testing.T) {
	reply := `{"sindicatoMatch": {"nombre": "UOM", "slug": "uom"}, "tipoDetectado": "multi-accion",
		"data": [{"titulo": "Asamblea", "tipo": "asamblea", "fecha": "2026-05-12", "fuente": "otra"},
		         {"titulo": "Paro", "tipo": "medida-fuerza", "fecha": "2026-05-20"}]}`
	s, fp := newTestService(reply, nil, nil)
	dir := []model.EntityRef{{Slug: "uom", Name: "Unión Obrera Metalúrgica"}}

	a, err := s.AnalyzeLink(context.Background(), " https://x.com/post/1 ", dir)
	if err != nil {
		t.Fatalf("AnalyzeLink: %v", err)
	}
	if a.Kind != extract.KindEvents || len(a.Events) != 2 {
		t.Fatalf("analysis: %+v", a)
	}
	for _, ev := range a.Events {
		if ev.Source != "https://x.com/post/1" {
			t.Errorf("source not overwritten: %q", ev.Source)
		}
	}

	c := fp.last(t)
	for _, want := range []string{`"slug":"uom"`, "2026-05-14", "https://x.com/post/1"} {
		if !strings.Contains(c.opts.System, want) {
			t.Errorf("system prompt lacks %q", want)
		}
	}
	if c.opts.Temperature != linkTemperature || !c.opts.Search {
		t.Errorf("opts: %+v", c.opts)
	}
}

func TestAnalyzeLinkFailures(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestService(`{"tipoDetectado": "error", "errorMessage": "login requerido"}`, nil, nil)
	_, err := s.AnalyzeLink(ctx, "https://x", nil)
	var failed *model.AnalysisFailedError
	if !errors.As(err, &failed) || failed.Message != "login requerido" {
		t.Fatalf("expected AnalysisFailedError, got %v", err)
	}

	if _, err := s.AnalyzeLink(ctx, "   ", nil); err == nil {
		t.Fatal("expected error for empty url")
	}

	s, _ = newTestService(`{"tipoDetectado": "accion", "data": {"titulo": "x"}}`, nil, nil)
	var inc *model.IncompleteEntityError
	if _, err := s.AnalyzeLink(ctx, "https://x", nil); !errors.As(err, &inc) {
		t.Fatalf("expected IncompleteEntityError, got %v", err)
	}
}

func TestAnalyzeNews(t *testing.T) {
	var items []model.NewsItem
	for i := 0; i < 25; i++ {
		items = append(items, model.NewsItem{Title: fmt.Sprintf("Nota %d", i), Link: fmt.Sprintf("https://n/%d", i)})
	}
	reply := `[
		{"sindicatoMatch": {"nombre": "UOM", "slug": "uom"}, "tipoDetectado": "accion", "data": {"titulo": "Paro", "tipo": "medida-fuerza", "fecha": "2026-05-20"}},
		{"tipoDetectado": "error", "errorMessage": "opinión"},
		{"sindicatoMatch": {"nombre": "Bancaria", "slug": "bancaria"}, "tipoDetectado": "paritaria", "data": {"periodo": "Mayo", "porcentajeAumento": "4%"}}
	]`
	s, fp := newTestService(reply, nil, nil)

	analyses, skipped, err := s.AnalyzeNews(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if len(analyses) != 2 || len(skipped) != 1 {
		t.Fatalf("analyses=%d skipped=%d", len(analyses), len(skipped))
	}
	c := fp.last(t)
	if !strings.Contains(c.prompt, "[ID_19]") || strings.Contains(c.prompt, "[ID_20]") {
		t.Error("news batch must be capped at 20 items")
	}
	if c.opts.Search || c.opts.Format != "json" {
		t.Errorf("opts: %+v", c.opts)
	}

	s, _ = newTestService(`{"not": "an array"}`, nil, nil)
	analyses, _, err = s.AnalyzeNews(context.Background(), items[:1])
	if err != nil || len(analyses) != 0 {
		t.Fatalf("non-array output: analyses=%v err=%v", analyses, err)
	}

	analyses, _, err = s.AnalyzeNews(context.Background(), nil)
	if err != nil || analyses != nil {
		t.Fatal("no items should not call the provider")
	}
}

func TestPromptOverridesFromAppConfig(t *testing.T) {
	app := &config.AppConfig{Prompts: map[string]string{string(prompt.Leadership): "Autoridades de {{name}} ya"}}
	s, fp := newTestService(`[]`, nil, app)
	if _, err := s.Leadership(context.Background(), "UOM"); err != nil {
		t.Fatal(err)
	}
	if got := fp.last(t).prompt; got != "Autoridades de UOM ya" {
		t.Errorf("override not used: %q", got)
	}

	s.SetAppConfig(nil)
	if _, err := s.Leadership(context.Background(), "UOM"); err != nil {
		t.Fatal(err)
	}
	if got := fp.last(t).prompt; got == "Autoridades de UOM ya" {
		t.Error("SetAppConfig(nil) should restore defaults")
	}
}
