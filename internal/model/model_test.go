package model

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestEntityJSONKeepsExtensionFields(t *testing.T) {
	doc := `{
		"nombre": "Unión Obrera Metalúrgica",
		"slug": "uom",
		"comisionDirectiva": [{"nombre": "Ana Pérez", "cargo": "Secretaria General"}],
		"datosBasicos": {"sedePrincipal": "Hipólito Yrigoyen 4265", "sitioWeb": "https://uom.org.ar", "afiliados": 250000},
		"acciones": {"k1": {"titulo": "Paro", "tipo": "medida-fuerza", "fecha": "2025-03-01", "lugar": "CABA", "fuente": "https://x", "descripcion": "d", "convocantes": "CGT"}},
		"paritarias": {},
		"provincia": "Buenos Aires"
	}`

	var e Entity
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Extra["provincia"] != "Buenos Aires" {
		t.Errorf("root extra lost: %#v", e.Extra)
	}
	if e.Profile.Extra["afiliados"] != float64(250000) {
		t.Errorf("profile extra lost: %#v", e.Profile.Extra)
	}
	if e.Events["k1"].Extra["convocantes"] != "CGT" {
		t.Errorf("event extra lost: %#v", e.Events["k1"].Extra)
	}

	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Entity
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if diff := cmp.Diff(e, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestExtraCannotShadowCoreField(t *testing.T) {
	ev := Event{Title: "Asamblea", Extra: map[string]any{"titulo": "otro"}}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"titulo":"Asamblea"`) {
		t.Fatalf("core field overwritten by extra: %s", b)
	}
}

func TestSanitizeFillsDroppedFields(t *testing.T) {
	var e Entity
	if err := json.Unmarshal([]byte(`{"nombre": ""}`), &e); err != nil {
		t.Fatal(err)
	}
	Sanitize(&e)

	if e.Name != PlaceholderName || e.Slug != PlaceholderSlug {
		t.Errorf("identity defaults: %q %q", e.Name, e.Slug)
	}
	if e.Events == nil || e.Agreements == nil || e.Leadership == nil {
		t.Error("collections must be non-nil after Sanitize")
	}
	if e.Profile.Headquarters != PlaceholderHQ {
		t.Errorf("headquarters default: %q", e.Profile.Headquarters)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Entity{
		Slug:       "uom",
		Leadership: []Leader{{Name: "A", Role: "SG"}},
		Events:     map[string]Event{"k": {Title: "t", Extra: map[string]any{"tags": []any{"a"}}}},
		Agreements: map[string]Agreement{"p": {Increase: "10%"}},
	}
	c := orig.Clone()
	c.Leadership[0].Name = "B"
	c.Events["k2"] = Event{Title: "new"}
	c.Events["k"].Extra["tags"].([]any)[0] = "changed"
	delete(c.Agreements, "p")

	if orig.Leadership[0].Name != "A" || len(orig.Events) != 1 || len(orig.Agreements) != 1 {
		t.Fatal("clone shares collections with the original")
	}
	if orig.Events["k"].Extra["tags"].([]any)[0] != "a" {
		t.Fatal("clone shares nested extension values")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"UOM", "uom"},
		{"Asociación Bancaria", "asociacion-bancaria"},
		{"  Sindicato   de Camioneros (CABA) ", "sindicato-de-camioneros-caba"},
		{"ATE - Capital", "ate-capital"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIncrease(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"85%", "85%", true},
		{"12,5%", "12,5%", true},
		{"aprox 85 % anual", "85%", true},
		{"total 33.333%", "33.33%", true},
		{"sin datos", "sin datos", false},
		{"3,5", "3,5", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeIncrease(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeIncrease(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeCategory(t *testing.T) {
	if got := NormalizeCategory(" Asamblea ", nil); got != CategoryAssembly {
		t.Errorf("got %q", got)
	}
	if got := NormalizeCategory("toma", nil); got != CategoryOther {
		t.Errorf("unknown category should map to otro, got %q", got)
	}
	if got := NormalizeCategory("toma", []string{"Toma"}); got != "toma" {
		t.Errorf("declared category should be kept, got %q", got)
	}
}

func TestExtensionsCoerce(t *testing.T) {
	ext := Extensions{
		{Key: "afiliados", Section: SectionProfile, Type: FieldNumber},
		{Key: "fundacion", Section: SectionProfile, Type: FieldDate},
		{Key: "lema", Section: SectionProfile, Type: FieldText},
		{Key: "convocantes", Section: SectionEvents, Type: FieldText},
	}

	got, warnings := ext.Coerce(SectionProfile, map[string]any{
		"afiliados":   "250.000,5",
		"fundacion":   "1943-08-20T00:00:00Z",
		"lema":        "unidad",
		"convocantes": "CGT",
		"color":       "rojo",
	})

	want := map[string]any{"fundacion": "1943-08-20", "lema": "unidad"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("coerced extras (-want +got):\n%s", diff)
	}
	// afiliados is not a parseable number; convocantes belongs to events;
	// color is undeclared.
	if len(warnings) != 3 {
		t.Errorf("expected 3 warnings, got %v", warnings)
	}

	n, err := CustomField{Type: FieldNumber}.Coerce("12,5")
	if err != nil || n != 12.5 {
		t.Errorf("number coercion: %v %v", n, err)
	}
}

func TestTruncateKeepsCharacters(t *testing.T) {
	got := truncate("Conducción", 9)
	if got != "Conducció..." {
		t.Errorf("truncate = %q", got)
	}
	if !utf8.ValidString(got) {
		t.Error("truncate split a character")
	}
	if got := truncate("año", 3); got != "año" {
		t.Errorf("truncate short = %q", got)
	}
}
