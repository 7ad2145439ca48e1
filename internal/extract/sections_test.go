package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hurttlocker/gremio/internal/model"
)

func TestDecodeLeadership(t *testing.T) {
	want := []model.Leader{{Name: "Ana", Role: "Secretaria General"}}
	for _, text := range []string{
		`[{"nombre": "Ana", "cargo": "Secretaria General"}]`,
		`{"comisionDirectiva": [{"nombre": "Ana", "cargo": "Secretaria General"}]}`,
	} {
		got, err := DecodeLeadership(text)
		if err != nil {
			t.Fatalf("DecodeLeadership(%q): %v", text, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	}

	got, err := DecodeLeadership(`{"otra": 1}`)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("object without leadership should yield an empty list: %v %v", got, err)
	}
}

func TestDecodeAgreements(t *testing.T) {
	bare := `{"a1": {"periodo": "Año 2025", "porcentajeAumento": "40 %"}}`
	wrapped := `{"paritarias": ` + bare + `}`
	for _, text := range []string{bare, wrapped} {
		got, warnings, err := DecodeAgreements(text, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(warnings) != 0 || got["a1"].Increase != "40%" {
			t.Errorf("got %#v warnings %v", got, warnings)
		}
	}
}

func TestDecodeEvents(t *testing.T) {
	got, _, err := DecodeEvents(`{"acciones": {"e1": {"titulo": "Marcha", "tipo": "Movilizacion", "fecha": "2025-06-01"}}}`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got["e1"].Category != model.CategoryMobilization {
		t.Errorf("category: %q", got["e1"].Category)
	}

	empty, _, err := DecodeEvents("{}", Options{})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("empty object: %v %v", empty, err)
	}
}

func TestDecodeStrings(t *testing.T) {
	got, err := DecodeStrings(`Logos: ["https://a/logo.png", 3, "", "https://b/logo.jpg"]`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://a/logo.png", "https://b/logo.jpg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
