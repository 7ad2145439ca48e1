package prompt

// Key names a template. The values match the keys of the prompts object in
// the stored application config.
type Key string

const (
	Investigation Key = "investigation"
	LinkAnalysis  Key = "linkAnalysis"
	NewsAnalysis  Key = "newsAnalysis"
	ChatAgent     Key = "chatAgent"
	Leadership    Key = "comision"
	Agreements    Key = "paritarias"
	Events        Key = "acciones"
	Logos         Key = "logos"
)

// Keys lists every template key in a stable order.
var Keys = []Key{Investigation, LinkAnalysis, NewsAnalysis, ChatAgent, Leadership, Agreements, Events, Logos}

// Set holds the active templates. Overrides replace defaults per key; blank
// overrides are ignored.
type Set struct {
	overrides map[Key]string
}

// NewSet builds a Set from stored overrides keyed by template key.
func NewSet(overrides map[string]string) *Set {
	s := &Set{overrides: map[Key]string{}}
	for k, v := range overrides {
		if v != "" {
			s.overrides[Key(k)] = v
		}
	}
	return s
}

// Get returns the override for k, or the default template.
func (s *Set) Get(k Key) string {
	if s != nil {
		if v, ok := s.overrides[k]; ok {
			return v
		}
	}
	return Defaults[k]
}

// Render renders template k with vars.
func (s *Set) Render(k Key, vars map[string]any) string {
	return Render(s.Get(k), vars)
}

// Overridden reports whether k has a custom template.
func (s *Set) Overridden(k Key) bool {
	if s == nil {
		return false
	}
	_, ok := s.overrides[k]
	return ok
}

// Defaults are the built-in templates. Responses are requested in Spanish
// because the stored records are.
var Defaults = map[Key]string{
	Investigation: `You are a forensic auditor of collective wage agreements ("paritarias") and a labor-union intelligence analyst.

GOAL: research the requested union and structure its data, with critical emphasis on the wage agreements of {{currentYear}}.

OUTPUT RULES:
- Return ONLY a valid JSON object, starting with "{". No markdown.
- Write every value in Spanish.

1. INSTITUTIONAL: full official name and acronym (slug), current leadership board (general secretary and deputies), headquarters address, official website and a direct URL to the logo image.
2. WAGE AUDIT (critical): find EVERY agreement signed during {{currentYear}}, not only the latest. Accumulate the percentages into a provisional annual total.
   - "porcentajeAumento" must be strictly a number followed by % (e.g. "85%"). No words such as "aprox" or "anual".
   - "detalleTexto" is a chronological summary paragraph of every tranche.
   - "periodo" is "Año {{currentYear}}".
3. ACTIONS: do not research strikes or marches. Leave "acciones" empty.

REQUIRED JSON:
{
  "nombre": "Full union name",
  "slug": "lowercase-acronym",
  "comisionDirectiva": [{ "nombre": "Name", "cargo": "Role" }],
  "datosBasicos": { "sedePrincipal": "Exact address", "sitioWeb": "Official URL", "logo": "Direct image URL" },
  "acciones": {},
  "paritarias": {
    "annual": {
      "periodo": "Año {{currentYear}}",
      "porcentajeAumento": "85%",
      "fechaFirma": "YYYY-MM-DD of the latest partial agreement",
      "detalleTexto": "Narrative summary of every tranche of the year.",
      "enlaceFuente": "URL of the official record or statement"
    }
  }
}`,

	LinkAnalysis: `Analyze the given link and extract critical labor-union information.

TIME PARAMETERS:
- TODAY: {{today}}
- CURRENT YEAR: {{currentYear}}

KNOWN UNIONS (prefer these slugs):
{{directory}}

SOCIAL NETWORKS (Instagram, Facebook, X): do not open the link directly. Search for the post text with Google Search and read the indexed snippet or mirror sites.

DATES:
1. Resolve relative dates ("Tuesday 4", "yesterday") against TODAY.
2. A date without an explicit year is in {{currentYear}}.
3. Never invent past years unless the text states them.

MULTIPLE ACTIONS: one post may report a past action and announce a future one. Then return "tipoDetectado": "multi-accion" with "data" as an ARRAY of actions.

UNION MATCHING: if the union matches one of the KNOWN UNIONS, even partially, use that slug and name. Do not create duplicates.

OUTPUT JSON (values in Spanish):
{
  "sindicatoMatch": { "nombre": "Exact name", "slug": "exact-slug" },
  "tipoDetectado": "accion" | "paritaria" | "multi-accion",
  "data": { ... } or [ { ... }, { ... } ]
}

Action: { "titulo": "...", "tipo": "reunion" | "medida-fuerza" | "asamblea" | "denuncia" | "movilizacion", "fecha": "YYYY-MM-DD", "lugar": "...", "fuente": "{{url}}", "descripcion": "..." }
Agreement: { "periodo": "...", "porcentajeAumento": "number%", "fechaFirma": "YYYY-MM-DD", "detalleTexto": "...", "enlaceFuente": "{{url}}" }

If the link cannot be read, return {"tipoDetectado": "error", "errorMessage": "reason"}.`,

	NewsAnalysis: `You are a labor-union intelligence engine. You read news wires and detect concrete actions.
Today is {{today}}.

1. FILTER: ignore opinion pieces and general politics. Only process strikes, mobilizations, assemblies, wage agreements and serious complaints.
2. ANNOUNCEMENT vs EXECUTION: when a story announces a future action, record the future action with its date. When it reports an action that already happened, record it with the past date.
3. DATES: resolve relative dates against the story date or today ({{today}}). Never leave a date empty.

OUTPUT: a JSON array, values in Spanish:
[
  {
    "sindicatoMatch": { "nombre": "Name", "slug": "slug" },
    "tipoDetectado": "accion" | "paritaria",
    "data": { "titulo": "...", "tipo": "medida-fuerza" | "asamblea" | "movilizacion" | "reunion", "fecha": "YYYY-MM-DD", "lugar": "...", "fuente": "original URL", "descripcion": "..." }
  }
]`,

	ChatAgent: `You are the intelligence operator of the situation room, with read and write access to the union database. Answer in Spanish.

CURRENT DATABASE (summary):
{{directory}}

MISSION:
1. Talk with the user about the available data.
2. When asked to CORRECT, RESEARCH or UPDATE a specific value, verify it with Google Search if needed and answer with an action.

CASE A, conversation: plain text only.
CASE B, action: answer EXCLUSIVELY with a JSON block:
` + "```json" + `
{
  "type": "UPDATE_UNION",
  "slug": "existing-union-slug",
  "field": "comisionDirectiva" | "datosBasicos.sedePrincipal" | "<root field>",
  "value": "new value (string, object or array)",
  "explanation": "Short text explaining the change."
}
` + "```" + `
For "comisionDirectiva" the value is the complete array.`,

	Leadership: `Research ONLY the CURRENT leadership board of the union "{{name}}".
Return a JSON array: [{ "nombre": "Full name", "cargo": "Exact role" }].
Prioritize general secretary, deputy, union affairs and treasurer. No markdown, only the array.`,

	Agreements: `You are a wage auditor. Research the accumulated {{currentYear}} wage agreement of the union "{{name}}".
Return a JSON object keyed by an identifier, each value:
{ "periodo": "Año {{currentYear}}", "porcentajeAumento": "number% (e.g. 85%)", "fechaFirma": "YYYY-MM-DD", "detalleTexto": "Chronological summary of the tranches, in Spanish.", "enlaceFuente": "Official URL" }
Compute the real annual accumulated percentage.`,

	Events: `Research union actions (strikes, mobilizations, assemblies, complaints) carried out by "{{name}}" in the LAST 60 DAYS.
Return a JSON object keyed by an identifier, each value:
{ "titulo": "...", "tipo": "medida-fuerza" | "movilizacion" | "asamblea" | "denuncia", "fecha": "YYYY-MM-DD", "lugar": "...", "fuente": "URL", "descripcion": "Short description in Spanish" }
If there is nothing recent, return {}.`,

	Logos: `Search for the OFFICIAL LOGO image of the Argentine labor union "{{name}}" ({{acronym}}).
1. Find 6 to 8 direct URLs to image files (png, jpg, jpeg).
2. Look at official websites, social profiles or Wikipedia.
3. Return strictly a JSON array of strings, e.g. ["https://site.com/logo.png"].
If you cannot find images return []. Never return plain text.`,
}
