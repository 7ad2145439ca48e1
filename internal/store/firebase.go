package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/model"
)

// Node paths of the realtime database.
const (
	entitiesNode = "sindicatos"
	configNode   = "config"
)

const defaultFirebaseTimeout = 30 * time.Second

// FirebaseConfig configures NewFirebaseStore.
type FirebaseConfig struct {
	URL        string // database root, e.g. https://<project>.firebaseio.com
	Secret     string // database secret or ID token, sent as ?auth=
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// FirebaseStore implements Backend on the Firebase Realtime Database REST
// API. Entities live under /sindicatos/<slug>, the app config under /config.
type FirebaseStore struct {
	base   string
	secret string
	client *http.Client
	log    *zap.Logger
}

// StatusError is a non-2xx answer from the database.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// NewFirebaseStore validates cfg and returns a store. No request is made.
func NewFirebaseStore(cfg FirebaseConfig) (*FirebaseStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("firebase store requires a database URL")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid firebase URL %q", cfg.URL)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultFirebaseTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &FirebaseStore{base: base, secret: cfg.Secret, client: client, log: log}, nil
}

// Close releases idle connections.
func (f *FirebaseStore) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// PutEntity writes e under its slug, replacing the whole record.
func (f *FirebaseStore) PutEntity(ctx context.Context, e *model.Entity) error {
	if err := checkIdentity(e); err != nil {
		return err
	}
	return f.do(ctx, http.MethodPut, entitiesNode+"/"+url.PathEscape(e.Slug), e, nil)
}

// GetAllEntities reads every record. Records that do not decode are
// skipped with a warning. The result is ordered by key.
func (f *FirebaseStore) GetAllEntities(ctx context.Context) ([]*model.Entity, error) {
	var raw map[string]json.RawMessage
	if err := f.do(ctx, http.MethodGet, entitiesNode, nil, &raw); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*model.Entity, 0, len(keys))
	for _, k := range keys {
		if string(raw[k]) == "null" {
			continue
		}
		var e model.Entity
		if err := json.Unmarshal(raw[k], &e); err != nil {
			f.log.Warn("skipping undecodable record", zap.String("key", k), zap.Error(err))
			continue
		}
		// The node key is the record's identity.
		if strings.TrimSpace(e.Slug) == "" {
			e.Slug = k
		}
		out = append(out, model.Sanitize(&e))
	}
	return out, nil
}

// DeleteEntity removes slug. The database treats a missing path as deleted.
func (f *FirebaseStore) DeleteEntity(ctx context.Context, slug string) error {
	if strings.TrimSpace(slug) == "" {
		return &model.IncompleteEntityError{Missing: []string{"slug"}}
	}
	return f.do(ctx, http.MethodDelete, entitiesNode+"/"+url.PathEscape(slug), nil, nil)
}

// GetAppConfig reads /config, falling back to defaults when it is empty.
func (f *FirebaseStore) GetAppConfig(ctx context.Context) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	if err := f.do(ctx, http.MethodGet, configNode, nil, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.DefaultAppConfig(), nil
	}
	return cfg.WithDefaults(), nil
}

// PutAppConfig replaces /config.
func (f *FirebaseStore) PutAppConfig(ctx context.Context, cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("nil app config")
	}
	return f.do(ctx, http.MethodPut, configNode, cfg, nil)
}

func (f *FirebaseStore) endpoint(path string) string {
	u := f.base + "/" + path + ".json"
	if f.secret != "" {
		u += "?auth=" + url.QueryEscape(f.secret)
	}
	return u
}

// do performs one request. body is JSON-encoded when non-nil; the response
// is decoded into out when non-nil. Every failure is an *model.UpstreamError.
func (f *FirebaseStore) do(ctx context.Context, method, path string, body, out any) error {
	op := fmt.Sprintf("firebase %s /%s", method, path)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding body: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.endpoint(path), reader)
	if err != nil {
		return &model.UpstreamError{Op: op, Err: f.redact(err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &model.UpstreamError{Op: op, Err: f.redact(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.UpstreamError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.UpstreamError{Op: op, Err: &StatusError{StatusCode: resp.StatusCode, Body: string(data)}}
	}

	f.log.Debug("firebase request", zap.String("method", method), zap.String("path", path), zap.Int("bytes", len(data)))

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &model.UpstreamError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// redact strips the auth secret from URL errors produced by net/http.
func (f *FirebaseStore) redact(err error) error {
	var uerr *url.Error
	if f.secret != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(f.secret), "****")
	}
	return err
}
