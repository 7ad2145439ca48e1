package investigate

import (
	"context"
	"strings"

	"github.com/hurttlocker/gremio/internal/extract"
	"github.com/hurttlocker/gremio/internal/llm"
	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/prompt"
)

// ActionUpdateUnion is the only action type the chat agent emits.
const ActionUpdateUnion = "UPDATE_UNION"

// ChatAction is a change the chat agent proposes for one entity. Field is a
// dotted path: "comisionDirectiva", "datosBasicos.<key>" or a root key.
type ChatAction struct {
	Type        string `json:"type"`
	Slug        string `json:"slug"`
	Field       string `json:"field"`
	Value       any    `json:"value"`
	Explanation string `json:"explanation"`
}

// ChatReply is the agent's answer. Action is set when the agent asked for a
// change; Reply then carries its explanation.
type ChatReply struct {
	Reply  string
	Action *ChatAction
}

type entitySummary struct {
	Slug   string `json:"slug"`
	Name   string `json:"nombre"`
	Leader string `json:"lider"`
	HQ     string `json:"sede"`
}

func summarize(entities []*model.Entity) []entitySummary {
	out := make([]entitySummary, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		sum := entitySummary{Slug: e.Slug, Name: e.Name, Leader: "N/A", HQ: "N/A"}
		if len(e.Leadership) > 0 && e.Leadership[0].Name != "" {
			sum.Leader = e.Leadership[0].Name
		}
		if e.Profile.Headquarters != "" {
			sum.HQ = e.Profile.Headquarters
		}
		out = append(out, sum)
	}
	return out
}

// Chat sends message to the database agent with a summary of entities as
// context. A reply carrying a fenced JSON block is decoded as a ChatAction.
func (s *Service) Chat(ctx context.Context, message string, entities []*model.Entity) (*ChatReply, error) {
	system := s.render(prompt.ChatAgent, map[string]any{"directory": summarize(entities)})
	text, err := s.complete(ctx, "chat", message, llm.CompletionOpts{System: system, Search: true})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return &ChatReply{Reply: "No tengo respuesta."}, nil
	}
	if !strings.Contains(text, "```json") {
		return &ChatReply{Reply: text}, nil
	}

	var action ChatAction
	if err := extract.Decode(text, &action); err != nil {
		return nil, err
	}
	reply := action.Explanation
	if reply == "" {
		reply = "Acción ejecutada."
	}
	return &ChatReply{Reply: reply, Action: &action}, nil
}
