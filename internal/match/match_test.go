package match

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hurttlocker/gremio/internal/model"
)

func TestMatch(t *testing.T) {
	directory := []model.EntityRef{
		{Slug: "sx", Name: "Sindicato X"},
		{Slug: "uom", Name: "Unión Obrera Metalúrgica"},
		{Slug: "vacio", Name: ""},
	}

	tests := []struct {
		name      string
		candidate model.EntityRef
		want      Resolution
	}{
		{
			name:      "name containment",
			candidate: model.EntityRef{Slug: "x", Name: "Sindicato X Nacional"},
			want:      Resolution{Ref: model.EntityRef{Slug: "sx", Name: "Sindicato X"}, By: "name"},
		},
		{
			name:      "slug hit ignores case",
			candidate: model.EntityRef{Slug: "UOM", Name: "Metalúrgicos"},
			want:      Resolution{Ref: model.EntityRef{Slug: "uom", Name: "Unión Obrera Metalúrgica"}, By: "slug"},
		},
		{
			name:      "name containment is case-insensitive",
			candidate: model.EntityRef{Name: "SINDICATO X de Rosario"},
			want:      Resolution{Ref: model.EntityRef{Slug: "sx", Name: "Sindicato X"}, By: "name"},
		},
		{
			name:      "new entity keeps normalized slug",
			candidate: model.EntityRef{Slug: "La Bancaria", Name: "Asociación Bancaria"},
			want:      Resolution{Ref: model.EntityRef{Slug: "la-bancaria", Name: "Asociación Bancaria"}, IsNew: true},
		},
		{
			name:      "new entity derives slug from name",
			candidate: model.EntityRef{Name: "Camioneros"},
			want:      Resolution{Ref: model.EntityRef{Slug: "camioneros", Name: "Camioneros"}, IsNew: true},
		},
		{
			name:      "shorter candidate does not match longer known name",
			candidate: model.EntityRef{Name: "Unión"},
			want:      Resolution{Ref: model.EntityRef{Slug: "union", Name: "Unión"}, IsNew: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.candidate, directory)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchFirstEntryWins(t *testing.T) {
	directory := []model.EntityRef{
		{Slug: "ate", Name: "ATE"},
		{Slug: "ate-caba", Name: "ATE Capital"},
	}
	got, err := Match(model.EntityRef{Name: "ATE Capital"}, directory)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ref.Slug != "ate" {
		t.Errorf("directory order should decide, got %q", got.Ref.Slug)
	}
}

func TestMatchIncomplete(t *testing.T) {
	_, err := Match(model.EntityRef{Slug: " ", Name: ""}, nil)
	var ie *model.IncompleteEntityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IncompleteEntityError, got %v", err)
	}
}

func TestMatchIsIdempotent(t *testing.T) {
	directory := []model.EntityRef{{Slug: "sx", Name: "Sindicato X"}}
	before := append([]model.EntityRef(nil), directory...)

	first, err := Match(model.EntityRef{Slug: "x", Name: "Sindicato X Nacional"}, directory)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Match(first.Ref, directory)
	if err != nil {
		t.Fatal(err)
	}
	if first.Ref != again.Ref || again.IsNew {
		t.Errorf("resolving the result again changed it: %+v -> %+v", first, again)
	}
	if diff := cmp.Diff(before, directory); diff != "" {
		t.Errorf("directory mutated:\n%s", diff)
	}
}

func TestShell(t *testing.T) {
	r, _ := Match(model.EntityRef{Name: "Camioneros"}, nil)
	shell := r.Shell()
	if shell == nil || shell.Slug != "camioneros" || shell.Events == nil || shell.Agreements == nil {
		t.Fatalf("shell: %#v", shell)
	}
	matched := Resolution{Ref: model.EntityRef{Slug: "a"}}
	if matched.Shell() != nil {
		t.Error("matched resolution should not build a shell")
	}
}

func TestDirectory(t *testing.T) {
	got := Directory([]*model.Entity{
		{Slug: "uom", Name: "UOM"},
		nil,
		{Slug: "ate", Name: "ATE"},
	})
	want := []model.EntityRef{{Slug: "ate", Name: "ATE"}, {Slug: "uom", Name: "UOM"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
