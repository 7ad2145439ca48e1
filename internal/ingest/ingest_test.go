package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/gremio/internal/batch"
	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/extract"
	"github.com/hurttlocker/gremio/internal/investigate"
	"github.com/hurttlocker/gremio/internal/llm"
	"github.com/hurttlocker/gremio/internal/merge"
	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/store"
)

// funcProvider answers with a function of the prompt.
type funcProvider struct {
	mu    sync.Mutex
	fn    func(prompt string, opts llm.CompletionOpts) (string, error)
	calls int
}

func (f *funcProvider) Name() string { return "fake/model" }

func (f *funcProvider) Complete(_ context.Context, p string, opts llm.CompletionOpts) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(p, opts)
}

func profileJSON(name, slug string) string {
	return fmt.Sprintf(`{
		"nombre": %q, "slug": %q,
		"comisionDirectiva": [{"nombre": "Nueva Conducción", "cargo": "Secretario General"}],
		"datosBasicos": {"sedePrincipal": "Sede nueva", "sitioWeb": "https://nuevo"},
		"paritarias": {"annual": {"periodo": "Año 2026", "porcentajeAumento": "40%%"}}
	}`, name, slug)
}

// seqKeys returns k1, k2, ... as merge keys.
func seqKeys() merge.KeyFunc {
	var n int
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("k%d", n)
	}
}

type fixture struct {
	in       *Ingester
	backend  *store.SQLiteStore
	provider *funcProvider
}

func newFixture(t *testing.T, fn func(string, llm.CompletionOpts) (string, error)) *fixture {
	t.Helper()
	backend, err := store.NewSQLiteStore(store.SQLiteConfig{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	require.NoError(t, backend.PutEntity(ctx, &model.Entity{
		Name:       "Unión Obrera Metalúrgica",
		Slug:       "uom",
		Leadership: []model.Leader{{Name: "Abel Furlán", Role: "Secretario General"}},
		Profile:    model.Profile{Headquarters: "Hipólito Yrigoyen 4265"},
		Events: map[string]model.Event{
			"e0": {Title: "Paro nacional", Category: model.CategoryStrike, Date: "2026-03-10"},
		},
		Agreements: map[string]model.Agreement{
			"old": {Period: "Año 2025", Increase: "120%"},
		},
	}))
	require.NoError(t, backend.PutEntity(ctx, &model.Entity{Name: "Asociación Bancaria", Slug: "bancaria"}))

	if fn == nil {
		fn = func(string, llm.CompletionOpts) (string, error) { return "", errors.New("unexpected call") }
	}
	fp := &funcProvider{fn: fn}
	pipeline := batch.NewPipeline(nil, nil)
	pipeline.Cooldown = 0

	in := New(Options{
		View:     store.NewView(backend, nil),
		Configs:  backend,
		Service:  investigate.New(fp, nil, nil),
		Merger:   merge.New(seqKeys()),
		Pipeline: pipeline,
	})
	require.NoError(t, in.LoadAll(ctx))
	return &fixture{in: in, backend: backend, provider: fp}
}

func TestLoadAll(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, 2, f.in.View().Len())
	assert.NotEmpty(t, f.in.AppConfig().NewsSources)

	ctx := context.Background()
	cfg := config.DefaultAppConfig()
	cfg.CustomFields = model.Extensions{{Key: "cuit", Label: "CUIT", Section: model.SectionRoot, Type: model.FieldText}}
	require.NoError(t, f.backend.PutAppConfig(ctx, cfg))
	require.NoError(t, f.in.LoadAll(ctx))
	assert.Len(t, f.in.AppConfig().CustomFields, 1)
}

type failingConfigs struct{ store.ConfigStore }

func (failingConfigs) GetAppConfig(context.Context) (*config.AppConfig, error) {
	return nil, errors.New("config node unreachable")
}

func TestLoadAllFallsBackToDefaultConfig(t *testing.T) {
	f := newFixture(t, nil)
	f.in.configs = failingConfigs{}
	require.NoError(t, f.in.LoadAll(context.Background()))
	assert.Len(t, f.in.AppConfig().NewsSources, len(config.DefaultNewsSources))
}

func TestApplyAnalysisExistingEntity(t *testing.T) {
	f := newFixture(t, nil)
	a := &extract.Analysis{
		Kind:  extract.KindEvents,
		Match: model.EntityRef{Name: "Unión Obrera Metalúrgica Seccional Campana", Slug: "uom-campana"},
		Events: []model.Event{
			{Title: "Paro nacional", Date: "2026-03-10"},
			{Title: "Asamblea", Date: "2026-05-02"},
		},
	}
	d, err := f.in.ApplyAnalysis(a)
	require.NoError(t, err)
	assert.False(t, d.IsNew)
	assert.Equal(t, "uom", d.Entity.Slug)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 1, d.Skipped)
	assert.Equal(t, "Asamblea", d.Entity.Events["k1"].Title)

	stored, _ := f.in.View().Get("uom")
	assert.Len(t, stored.Events, 1, "ApplyAnalysis must not save")
}

func TestApplyAnalysisNewEntityAgreement(t *testing.T) {
	f := newFixture(t, nil)
	d, err := f.in.ApplyAnalysis(&extract.Analysis{
		Kind:      extract.KindAgreement,
		Match:     model.EntityRef{Name: "Sindicato de Camioneros", Slug: "Camioneros"},
		Agreement: &model.Agreement{Period: "Mayo 2026", Increase: "5%"},
	})
	require.NoError(t, err)
	assert.True(t, d.IsNew)
	assert.Equal(t, "camioneros", d.Entity.Slug)
	assert.Equal(t, model.PlaceholderNewHQ, d.Entity.Profile.Headquarters)
	assert.Equal(t, "5%", d.Entity.Agreements["k1"].Increase)
}

func TestApplyAnalysisErrors(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.in.ApplyAnalysis(&extract.Analysis{Kind: extract.KindError, Message: "sin acceso"})
	var failed *model.AnalysisFailedError
	assert.ErrorAs(t, err, &failed)

	_, err = f.in.ApplyAnalysis(&extract.Analysis{Kind: extract.KindEvent})
	var inc *model.IncompleteEntityError
	assert.ErrorAs(t, err, &inc)

	_, err = f.in.ApplyAnalysis(nil)
	assert.Error(t, err)
}

func TestAcceptSuggestion(t *testing.T) {
	t.Run("known slug applies directly", func(t *testing.T) {
		f := newFixture(t, nil)
		d, err := f.in.AcceptSuggestion(context.Background(), &extract.Analysis{
			Kind:   extract.KindEvent,
			Match:  model.EntityRef{Name: "UOM", Slug: "uom"},
			Events: []model.Event{{Title: "Movilización", Date: "2026-05-20"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "uom", d.Entity.Slug)
		assert.Equal(t, 0, f.provider.calls)
	})

	t.Run("unknown union is investigated", func(t *testing.T) {
		f := newFixture(t, func(p string, _ llm.CompletionOpts) (string, error) {
			return profileJSON("Sindicato de Choferes", "choferes"), nil
		})
		d, err := f.in.AcceptSuggestion(context.Background(), &extract.Analysis{
			Kind:   extract.KindEvent,
			Match:  model.EntityRef{Name: "Sindicato de Choferes", Slug: "choferes"},
			Events: []model.Event{{Title: "Paro", Date: "2026-05-20"}},
		})
		require.NoError(t, err)
		assert.True(t, d.IsNew)
		assert.Equal(t, "Sede nueva", d.Entity.Profile.Headquarters)
		assert.Equal(t, "Paro", d.Entity.Events["k1"].Title)
		assert.Equal(t, 1, f.provider.calls)
	})

	t.Run("failed investigation falls back to a shell", func(t *testing.T) {
		f := newFixture(t, func(string, llm.CompletionOpts) (string, error) {
			return "", &llm.HTTPError{StatusCode: 500}
		})
		d, err := f.in.AcceptSuggestion(context.Background(), &extract.Analysis{
			Kind:      extract.KindAgreement,
			Match:     model.EntityRef{Name: "Sindicato de Choferes", Slug: "choferes"},
			Agreement: &model.Agreement{Increase: "3%"},
		})
		require.NoError(t, err)
		assert.True(t, d.IsNew)
		assert.Equal(t, model.PlaceholderNewHQ, d.Entity.Profile.Headquarters)
		assert.Len(t, d.Entity.Agreements, 1)
		require.Len(t, d.Warnings, 1)
		assert.Contains(t, d.Warnings[0], "investigation failed")
	})
}

func TestRefreshReconciles(t *testing.T) {
	f := newFixture(t, func(p string, opts llm.CompletionOpts) (string, error) {
		if !strings.Contains(p, "Unión Obrera Metalúrgica") {
			return "", fmt.Errorf("unexpected prompt %q", p)
		}
		return profileJSON("UOM", "uom-nueva"), nil
	})
	d, err := f.in.Refresh(context.Background(), "uom")
	require.NoError(t, err)

	e := d.Entity
	assert.Equal(t, "uom", e.Slug, "slug never changes")
	assert.Equal(t, "Unión Obrera Metalúrgica", e.Name)
	assert.Equal(t, "Sede nueva", e.Profile.Headquarters)
	assert.Equal(t, "Nueva Conducción", e.Leadership[0].Name)
	assert.Len(t, e.Agreements, 2)
	assert.Len(t, e.Events, 1)

	_, err = f.in.Refresh(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvestigate(t *testing.T) {
	f := newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return profileJSON("Unión Obrera Metalúrgica", "UOM"), nil
	})
	d, err := f.in.Investigate(context.Background(), "UOM")
	require.NoError(t, err)
	assert.False(t, d.IsNew)
	assert.Len(t, d.Entity.Events, 1, "stored events kept")

	f = newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return profileJSON("Aceiteros", "aceiteros"), nil
	})
	d, err = f.in.Investigate(context.Background(), "Aceiteros")
	require.NoError(t, err)
	assert.True(t, d.IsNew)
	assert.NotNil(t, d.Entity.Events)
}

func TestRefreshSection(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return `[{"nombre": "Ana", "cargo": "Secretaria General"}]`, nil
	})
	d, err := f.in.RefreshSection(ctx, "uom", SectionLeadership)
	require.NoError(t, err)
	assert.Equal(t, []model.Leader{{Name: "Ana", Role: "Secretaria General"}}, d.Entity.Leadership)

	f = newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return `{"acciones": {"x": {"titulo": "Otro paro", "tipo": "medida-fuerza", "fecha": "2026-03-10"}, "y": {"titulo": "Asamblea", "tipo": "asamblea", "fecha": "2026-05-01"}}}`, nil
	})
	d, err = f.in.RefreshSection(ctx, "uom", SectionEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 1, d.Skipped, "same date and category is a duplicate")

	f = newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return `{"annual": {"periodo": "Año 2026", "porcentajeAumento": "40%"}}`, nil
	})
	d, err = f.in.RefreshSection(ctx, "uom", SectionAgreements)
	require.NoError(t, err)
	assert.Len(t, d.Entity.Agreements, 2)

	_, err = f.in.RefreshSection(ctx, "uom", Section("logo"))
	assert.Error(t, err)
}

func TestParseSection(t *testing.T) {
	for in, want := range map[string]Section{
		"comisionDirectiva": SectionLeadership,
		"leadership":        SectionLeadership,
		"Paritarias":        SectionAgreements,
		"events":            SectionEvents,
	} {
		got, err := ParseSection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSection("logos")
	assert.Error(t, err)
}

func TestSaveAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.in.Save(ctx, &model.Entity{Name: "Camioneros", Slug: "camioneros"}))
	all, err := f.backend.GetAllEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, f.in.Delete(ctx, "camioneros"))
	_, ok := f.in.View().Get("camioneros")
	assert.False(t, ok)
}

func TestBulkRefresh(t *testing.T) {
	f := newFixture(t, func(p string, _ llm.CompletionOpts) (string, error) {
		if strings.Contains(p, "Bancaria") {
			return "", &llm.HTTPError{StatusCode: 400, Message: "bad"}
		}
		return profileJSON("UOM", "uom"), nil
	})
	var progress []batch.Progress
	report, err := f.in.BulkRefresh(context.Background(), func(p batch.Progress) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, progress, 2)
	assert.Equal(t, "Asociación Bancaria", progress[0].Name)

	stored, err := f.backend.GetEntity(context.Background(), "uom")
	require.NoError(t, err)
	assert.Equal(t, "Sede nueva", stored.Profile.Headquarters)
}

func TestBulkRefreshStream(t *testing.T) {
	f := newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return profileJSON("X", "x"), nil
	})
	ch, err := f.in.BulkRefreshStream(context.Background())
	require.NoError(t, err)

	var last *batch.Report
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				require.NotNil(t, last)
				assert.Equal(t, 2, last.Succeeded)
				return
			}
			if u.Report != nil {
				last = u.Report
			}
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestFlowsRequireService(t *testing.T) {
	f := newFixture(t, nil)
	f.in.svc = nil
	_, err := f.in.Refresh(context.Background(), "uom")
	assert.Error(t, err)
	_, err = f.in.BulkRefresh(context.Background(), nil)
	assert.Error(t, err)
}

func TestAnalyzeLink(t *testing.T) {
	f := newFixture(t, func(p string, opts llm.CompletionOpts) (string, error) {
		if !strings.Contains(opts.System, `"uom"`) {
			return "", errors.New("directory missing from prompt")
		}
		return "```json\n" + `{
			"sindicatoMatch": {"slug": "uom", "nombre": "UOM"},
			"tipoDetectado": "accion",
			"data": {"titulo": "Paro en Campana", "tipo": "paro", "fecha": "2026-05-12"}
		}` + "\n```", nil
	})
	d, err := f.in.AnalyzeLink(context.Background(), "https://diario/nota")
	require.NoError(t, err)
	assert.False(t, d.IsNew)
	assert.Equal(t, 1, d.Added)
	ev := d.Entity.Events["k1"]
	assert.Equal(t, "Paro en Campana", ev.Title)
	assert.Equal(t, "https://diario/nota", ev.Source)

	f = newFixture(t, func(string, llm.CompletionOpts) (string, error) {
		return `{"tipoDetectado": "error", "errorMessage": "contenido inaccesible"}`, nil
	})
	_, err = f.in.AnalyzeLink(context.Background(), "https://diario/nota")
	var failed *model.AnalysisFailedError
	assert.ErrorAs(t, err, &failed)
}
