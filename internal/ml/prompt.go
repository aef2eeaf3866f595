package ml

import (
	"strings"
	"text/template"

	"github.com/franckalain/labelverdict/internal/models"
)

var personaIntro = map[models.Persona]string{
	models.PersonaNutritionist: "You are a professional nutritionist and food scientist. You are reviewing a food product for a person aged {{.Age}}.",
	models.PersonaParent:       "You are a caring, experienced mother who knows nutrition well. You are deciding whether a person aged {{.Age}} in your family should eat this product.",
}

var personaTone = map[models.Persona]string{
	models.PersonaNutritionist: `Tone guidelines:
- Be professional, objective, and concise.
- Avoid emotional or colloquial language.
- Focus on facts and nutritional science.
- Ensure the verdict aligns strictly with the nutritional analysis.`,
	models.PersonaParent: `Tone guidelines:
- Be warm and direct, the way a parent explains a decision.
- Keep the advice practical and grounded in the ingredients.
- Ensure the verdict aligns strictly with the nutritional analysis.`,
}

const promptBody = `
{{if .Image}}Analyze the product ingredients shown in this image. First, extract and list all the ingredients you can see in the image.{{else}}Analyze the following ingredient list of a packaged food product:
"""
{{.Text}}
"""{{end}}
{{- if .Goals}}

The person has these nutrition goals: {{join .Goals}}. Weigh the analysis against them.
{{- end}}
{{- if .Preferences}}

The person follows these dietary preferences: {{join .Preferences}}.
If any ingredient violates a dietary preference, list each violation in "dietaryWarnings" and the verdict MUST be "avoid_it" or "think_twice", never "take_it".
{{- end}}

Provide your analysis in the following strict JSON format (no additional narration outside JSON):

{
  "overallHealth": "2-3 sentence summary of the product's health profile",
  "healthScore": <integer between 0-100>,
  "ageAppropriate": <true/false>,
  "ingredients": [{"name": "ingredient", "description": "what it is", "healthImpact": "positive" | "neutral" | "negative"}],
  "pros": ["nutritional benefit 1", "nutritional benefit 2"],
  "cons": ["health concern 1", "health concern 2"],
  "dietaryWarnings": ["dietary preference violation 1"],
  "recommendations": ["recommendation 1", "recommendation 2"],
  "advice": "A concise verdict (3-4 sentences) explaining whether this product is suitable, citing specific ingredients or nutritional values.",
  "verdict": "take_it" | "avoid_it" | "think_twice"
}

While deciding the verdict, consider:
- Age-appropriateness for {{.Age}} years old
- Nutritional density and ingredient quality
- Presence of additives, preservatives, or allergens
- Sugar, salt, and fat content relative to daily recommended limits
- Suitability for a balanced diet

{{.Tone}}

Return ONLY valid JSON, no additional text.`

var funcs = template.FuncMap{
	"join": func(items []string) string { return strings.Join(items, ", ") },
}

var prompts = func() map[models.Persona]*template.Template {
	out := make(map[models.Persona]*template.Template, len(personaIntro))
	for persona, intro := range personaIntro {
		out[persona] = template.Must(template.New(string(persona)).Funcs(funcs).Parse(intro + "\n" + promptBody))
	}
	return out
}()

type promptData struct {
	Age         int
	Image       bool
	Text        string
	Goals       []string
	Preferences []string
	Tone        string
}

// BuildPrompt renders the instruction for req using its persona, defaulting
// to the nutritionist.
func BuildPrompt(req *models.AnalysisRequest) (string, error) {
	persona := req.Persona
	tmpl, ok := prompts[persona]
	if !ok {
		persona = models.PersonaNutritionist
		tmpl = prompts[persona]
	}

	data := promptData{
		Age:   req.Age,
		Image: req.HasImage(),
		Text:  strings.TrimSpace(req.Text),
		Tone:  personaTone[persona],
	}
	for _, g := range req.Goals {
		data.Goals = append(data.Goals, string(g))
	}
	for _, p := range req.DietaryPreferences {
		data.Preferences = append(data.Preferences, string(p))
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
