// Package investigate asks the generative text service about unions and
// turns the answers into records: full profiles, single sections, link and
// news analyses, logo candidates and the chat agent.
//
// Every call renders its template from the active prompt set, calls the
// provider once and hands the text to the extract package. Provider
// failures are returned as *model.UpstreamError.
package investigate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/extract"
	"github.com/hurttlocker/gremio/internal/llm"
	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/prompt"
)

// MaxNewsItems caps the items sent in one news analysis.
const MaxNewsItems = 20

// Sampling temperatures.
const (
	linkTemperature = 0.1
	logoTemperature = 0.2
)

// Service runs investigations against one provider.
type Service struct {
	provider llm.Provider
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	prompts *prompt.Set
	opts    extract.Options
}

// New builds a Service. app may be nil, in which case the default prompts
// and no extension fields are used.
func New(provider llm.Provider, app *config.AppConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{provider: provider, log: logger, now: time.Now}
	s.SetAppConfig(app)
	return s
}

// SetAppConfig swaps the prompt overrides, extension fields and event
// categories used by later calls.
func (s *Service) SetAppConfig(app *config.AppConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = app.PromptSet()
	s.opts = extract.Options{}
	if app != nil {
		s.opts.Extensions = app.CustomFields
		s.opts.Categories = app.EventCategories
	}
}

// Options returns the extraction options derived from the app config.
func (s *Service) Options() extract.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// ProviderName names the underlying provider.
func (s *Service) ProviderName() string { return s.provider.Name() }

func (s *Service) render(k prompt.Key, vars map[string]any) string {
	s.mu.RLock()
	set := s.prompts
	s.mu.RUnlock()
	return set.Render(k, vars)
}

func (s *Service) complete(ctx context.Context, op, userPrompt string, opts llm.CompletionOpts) (string, error) {
	start := s.now()
	text, err := s.provider.Complete(ctx, userPrompt, opts)
	if err != nil {
		s.log.Warn("completion failed", zap.String("op", op), zap.String("provider", s.provider.Name()), zap.Error(err))
		return "", &model.UpstreamError{Op: op, Err: err}
	}
	s.log.Debug("completion done",
		zap.String("op", op),
		zap.Duration("elapsed", s.now().Sub(start)),
		zap.Int("chars", len(text)))
	return text, nil
}

func (s *Service) year() string  { return s.now().Format("2006") }
func (s *Service) today() string { return s.now().Format("2006-01-02") }

// Profile researches a union from scratch and returns a complete record.
// Name and slug are required in the answer.
func (s *Service) Profile(ctx context.Context, name string) (*model.Entity, []string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, &model.IncompleteEntityError{Missing: []string{"nombre"}}
	}
	system := s.render(prompt.Investigation, map[string]any{"currentYear": s.year(), "name": name})
	user := fmt.Sprintf(`Realizá una auditoría salarial para: "%s".
1. Identificá líderes, sede y URL del logo.
2. Buscá exhaustivamente todos los acuerdos de %s.
3. Calculá el porcentaje total acumulado del año (número exacto).
4. Redactá el resumen de tramos.
5. No inventes datos. Si no hay datos oficiales, indicalo.`, name, s.year())

	text, err := s.complete(ctx, "investigate profile", user, llm.CompletionOpts{System: system, Search: true})
	if err != nil {
		return nil, nil, err
	}
	return extract.DecodeProfile(text, s.Options())
}

// Leadership researches the current governing board of a union.
func (s *Service) Leadership(ctx context.Context, name string) ([]model.Leader, error) {
	user := s.render(prompt.Leadership, map[string]any{"name": name})
	text, err := s.complete(ctx, "investigate leadership", user, llm.CompletionOpts{Search: true})
	if err != nil {
		return nil, err
	}
	return extract.DecodeLeadership(text)
}

// Agreements researches the wage agreements of the current year.
func (s *Service) Agreements(ctx context.Context, name string) (map[string]model.Agreement, []string, error) {
	user := s.render(prompt.Agreements, map[string]any{"name": name, "currentYear": s.year()})
	text, err := s.complete(ctx, "investigate agreements", user, llm.CompletionOpts{Search: true})
	if err != nil {
		return nil, nil, err
	}
	return extract.DecodeAgreements(text, s.Options())
}

// Events researches recent union actions.
func (s *Service) Events(ctx context.Context, name string) (map[string]model.Event, []string, error) {
	user := s.render(prompt.Events, map[string]any{"name": name, "today": s.today()})
	text, err := s.complete(ctx, "investigate events", user, llm.CompletionOpts{Search: true})
	if err != nil {
		return nil, nil, err
	}
	return extract.DecodeEvents(text, s.Options())
}

// Logos returns candidate logo image URLs. It never fails: any problem
// yields an empty list.
func (s *Service) Logos(ctx context.Context, name, acronym string) []string {
	if acronym == "" || acronym == model.PlaceholderSlug {
		acronym = name
	}
	user := s.render(prompt.Logos, map[string]any{"name": name, "acronym": acronym})
	text, err := s.complete(ctx, "search logos", user, llm.CompletionOpts{Search: true, Temperature: logoTemperature})
	if err != nil {
		return []string{}
	}
	urls, err := extract.DecodeStrings(text)
	if err != nil {
		s.log.Warn("logo search returned no list", zap.String("name", name), zap.Error(err))
		return []string{}
	}
	return urls
}

// AnalyzeLink reads the content behind url and classifies it against the
// known directory. An answer tagged as an error is returned as
// *model.AnalysisFailedError.
func (s *Service) AnalyzeLink(ctx context.Context, url string, directory []model.EntityRef) (*extract.Analysis, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("analyze link: empty url")
	}
	if directory == nil {
		directory = []model.EntityRef{}
	}
	system := s.render(prompt.LinkAnalysis, map[string]any{
		"today":       s.today(),
		"currentYear": s.year(),
		"directory":   directory,
		"url":         url,
	})
	user := "Analizá este enlace con extrema precisión: " + url

	text, err := s.complete(ctx, "analyze link", user, llm.CompletionOpts{
		System:      system,
		Search:      true,
		Temperature: linkTemperature,
	})
	if err != nil {
		return nil, err
	}

	opts := s.Options()
	opts.SourceURL = url
	a, err := extract.ParseAnalysis(text, opts)
	if err != nil {
		return nil, err
	}
	if err := a.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// AnalyzeNews classifies a batch of feed items. Only the first
// MaxNewsItems are sent. Entries the model tagged as errors or that fail to
// decode are returned in skipped.
func (s *Service) AnalyzeNews(ctx context.Context, items []model.NewsItem) (analyses []*extract.Analysis, skipped []error, err error) {
	if len(items) == 0 {
		return nil, nil, nil
	}
	if len(items) > MaxNewsItems {
		items = items[:MaxNewsItems]
	}
	var b strings.Builder
	b.WriteString("Analizá estos cables y extraé acciones:\n")
	for i, n := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[ID_%d] Fecha: %s | Título: %s | Desc: %s | Link: %s", i, n.PubDate, n.Title, n.Description, n.Link)
	}
	system := s.render(prompt.NewsAnalysis, map[string]any{"today": s.today()})

	text, err := s.complete(ctx, "analyze news", b.String(), llm.CompletionOpts{System: system, Format: "json"})
	if err != nil {
		return nil, nil, err
	}
	analyses, skipped, err = extract.ParseAnalyses(text, s.Options())
	if err != nil {
		return nil, nil, err
	}
	for _, e := range skipped {
		s.log.Debug("news item skipped", zap.Error(e))
	}
	return analyses, skipped, nil
}
