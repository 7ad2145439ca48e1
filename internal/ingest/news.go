package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/gremio/internal/model"
)

// ReadNewsItems loads feed items saved by the caller from a .json, .yaml or
// .yml file. Accepted shapes:
//   - an array of items;
//   - an object with an "items" array;
//   - an object keyed by id, read in key order.
//
// Items without a title and a link are dropped.
func ReadNewsItems(path string) ([]model.NewsItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var raw any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
		}
	}

	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		if items, ok := v["items"].([]any); ok {
			list = items
			break
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			list = append(list, v[k])
		}
	default:
		return nil, fmt.Errorf("%s: expected a list of news items", path)
	}

	out := make([]model.NewsItem, 0, len(list))
	for i, elem := range list {
		// Round-trip through JSON so YAML and JSON share the field names.
		b, err := json.Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: item %d: %w", path, i, err)
		}
		var item model.NewsItem
		if err := json.Unmarshal(b, &item); err != nil {
			return nil, fmt.Errorf("%s: item %d: %w", path, i, err)
		}
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
