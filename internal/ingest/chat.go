package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/investigate"
	"github.com/hurttlocker/gremio/internal/model"
)

// Fields a chat action may not touch.
var lockedFields = map[string]bool{"slug": true}

// ApplyChatAction executes a change proposed by the chat agent and saves
// the result. Field is "comisionDirectiva", "datosBasicos.<key>" or a root
// key; the value must fit the field's type.
func (in *Ingester) ApplyChatAction(ctx context.Context, action *investigate.ChatAction) (*model.Entity, error) {
	if action == nil {
		return nil, fmt.Errorf("nil chat action")
	}
	if action.Type != investigate.ActionUpdateUnion {
		return nil, fmt.Errorf("unsupported chat action %q", action.Type)
	}
	target, err := in.get(action.Slug)
	if err != nil {
		return nil, err
	}
	updated, err := setField(target, action.Field, action.Value)
	if err != nil {
		return nil, err
	}
	if err := in.view.Save(ctx, updated); err != nil {
		return nil, err
	}
	in.log.Info("chat action applied",
		zap.String("slug", updated.Slug),
		zap.String("field", action.Field),
		zap.String("explanation", action.Explanation))
	return updated, nil
}

// setField returns a copy of e with the dotted path set to value. The
// change is applied on the JSON form so extension fields and core fields
// go through the same decoding.
func setField(e *model.Entity, field string, value any) (*model.Entity, error) {
	field = strings.TrimSpace(field)
	parts := strings.Split(field, ".")
	if field == "" || lockedFields[parts[0]] {
		return nil, fmt.Errorf("field %q cannot be updated", field)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}

	switch len(parts) {
	case 1:
		doc[parts[0]] = value
	case 2:
		if parts[0] != "datosBasicos" {
			return nil, fmt.Errorf("field %q: only datosBasicos.<key> paths are supported", field)
		}
		section, _ := doc[parts[0]].(map[string]any)
		if section == nil {
			section = map[string]any{}
		}
		section[parts[1]] = value
		doc[parts[0]] = section
	default:
		return nil, fmt.Errorf("field %q: path too deep", field)
	}

	b, err = json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out model.Entity
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, &model.MalformedOutputError{Fragment: fmt.Sprint(value), Err: fmt.Errorf("field %s: %w", field, err)}
	}
	return model.Sanitize(&out), nil
}
