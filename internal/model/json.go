package model

import (
	"encoding/json"
)

// Core keys per record type. Anything else in a document lands in Extra.
var (
	entityKeys    = []string{"nombre", "slug", "comisionDirectiva", "datosBasicos", "acciones", "paritarias"}
	profileKeys   = []string{"sedePrincipal", "sitioWeb", "logo"}
	eventKeys     = []string{"titulo", "tipo", "fecha", "lugar", "fuente", "descripcion"}
	agreementKeys = []string{"periodo", "porcentajeAumento", "fechaFirma", "detalleTexto", "enlaceFuente"}
)

// Method-free mirrors used to reach the default encoder.
type (
	entityFields    Entity
	profileFields   Profile
	eventFields     Event
	agreementFields Agreement
)

func (e Entity) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(entityFields(e), e.Extra)
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	var core entityFields
	extra, err := unmarshalWithExtras(data, &core, entityKeys)
	if err != nil {
		return err
	}
	*e = Entity(core)
	e.Extra = extra
	return nil
}

func (p Profile) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(profileFields(p), p.Extra)
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var core profileFields
	extra, err := unmarshalWithExtras(data, &core, profileKeys)
	if err != nil {
		return err
	}
	*p = Profile(core)
	p.Extra = extra
	return nil
}

func (ev Event) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(eventFields(ev), ev.Extra)
}

func (ev *Event) UnmarshalJSON(data []byte) error {
	var core eventFields
	extra, err := unmarshalWithExtras(data, &core, eventKeys)
	if err != nil {
		return err
	}
	*ev = Event(core)
	ev.Extra = extra
	return nil
}

func (a Agreement) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(agreementFields(a), a.Extra)
}

func (a *Agreement) UnmarshalJSON(data []byte) error {
	var core agreementFields
	extra, err := unmarshalWithExtras(data, &core, agreementKeys)
	if err != nil {
		return err
	}
	*a = Agreement(core)
	a.Extra = extra
	return nil
}

func marshalWithExtras(core any, extras map[string]any) ([]byte, error) {
	b, err := json.Marshal(core)
	if err != nil || len(extras) == 0 {
		return b, err
	}
	var merged map[string]any
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range extras {
		if _, taken := merged[k]; taken {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

func unmarshalWithExtras(data []byte, core any, known []string) (map[string]any, error) {
	if err := json.Unmarshal(data, core); err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
