package planner

import (
	"fmt"
	"strings"
)

// entityIDPlaceholder is the literal token the prompt instructs the model to
// emit wherever it cannot yet know a real entity identifier (§4.C5). The
// Single-Call Planner substitutes it with a resolved EntityMatch.ID.
const entityIDPlaceholder = "ENTITY_ID_PLACEHOLDER"

// maxSchemaColumns bounds how many columns per table are listed in the
// prompt, mirroring the reference planner's column truncation.
const maxSchemaColumns = 8

// maxIntentExamplesPerPattern bounds how many intent exemplars are listed
// per route pattern in the prompt.
const maxIntentExamplesPerPattern = 3

// PlanningContext carries everything the Prompt Builder needs to render one
// request: the site configuration, the query exactly as the caller sent it
// (Service does not normalize it before planning), and any
// opaque session data passed through from the caller (§6).
type PlanningContext struct {
	Config   *SiteConfiguration
	Query    string
	Session  map[string]any
}

// BuildPrompt renders ctx into the single comprehensive prompt the planner
// sends to the Predictor. The prompt fixes the model's output key set and
// constrains resolved_route to the declared templates (§4.C5).
func BuildPrompt(ctx PlanningContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an expert at analyzing user queries for web application routing. Complete ALL analysis in one response.\n\n")
	fmt.Fprintf(&b, "CRITICAL CONSTRAINT: You MUST ONLY use the route patterns provided below. NEVER invent new routes.\n\n")
	fmt.Fprintf(&b, "DOMAIN: %s\n", ctx.Config.Domain)
	fmt.Fprintf(&b, "USER QUERY: %q\n\n", ctx.Query)
	fmt.Fprintf(&b, "DATABASE SCHEMA:\n%s\n\n", formatSchemaSummary(ctx.Config.Schema))
	fmt.Fprintf(&b, "AVAILABLE ROUTE PATTERNS:\n%s\n", formatRoutePatterns(ctx.Config.Routes))

	b.WriteString("TASK: Analyze this query and provide a complete routing solution:\n\n")
	b.WriteString("1. INTENT ANALYSIS: action type (navigate, create, edit, delete, query), entities mentioned, view/data type requested.\n")
	b.WriteString("2. ENTITY RESOLUTION: for each entity, which tables to search, which fields, and your confidence.\n")
	b.WriteString("3. ROUTE MATCHING: which route pattern matches, how to fill its parameters, the final resolved route.\n\n")

	b.WriteString("ROUTE VALIDATION REQUIREMENTS:\n")
	b.WriteString("- resolved_route MUST exactly match one of the patterns above after substituting parameters.\n")
	fmt.Fprintf(&b, "- Use the literal token %s wherever you cannot yet know a real identifier.\n", entityIDPlaceholder)
	b.WriteString("- If unsure, default to a search route.\n\n")

	b.WriteString("RESPONSE FORMAT (JSON), keys are fixed:\n")
	b.WriteString(`{
  "intent": {"action_type": "navigate|create|edit|delete|query", "entities": ["..."], "view_type": "...", "confidence": 0.9},
  "entity_resolution": [{"entity_name": "...", "search_tables": ["..."], "search_fields": ["..."], "confidence": 0.9}],
  "route_matching": {
    "matched_pattern": "...",
    "resolved_route": "...",
    "parameters": [{"name": "...", "value": "...", "type": "...", "source": "entity|literal|inferred|llm"}],
    "confidence": 0.85
  },
  "overall_confidence": 0.87,
  "reasoning": "..."
}
`)
	b.WriteString("\nAnalyze the query now.\n")

	return b.String()
}

// formatSchemaSummary renders a compact "- table: col, col, col" list,
// mirroring the reference prompt's column truncation.
func formatSchemaSummary(schema SchemaSpec) string {
	if len(schema.Tables) == 0 {
		return "No schema information available"
	}

	var lines []string
	for _, table := range schema.Tables {
		cols := table.Columns
		if len(cols) > maxSchemaColumns {
			cols = cols[:maxSchemaColumns]
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", table.Name, strings.Join(names, ", ")))
	}
	return strings.Join(lines, "\n")
}

// formatRoutePatterns renders the numbered pattern list with intent
// exemplars and parameter descriptors injected into the prompt (§4.C5).
func formatRoutePatterns(patterns []RoutePattern) string {
	if len(patterns) == 0 {
		return "NO ROUTE PATTERNS AVAILABLE - USE FALLBACK ROUTES ONLY"
	}

	var lines []string
	lines = append(lines, "You MUST use ONLY these route patterns:", "")

	for i, p := range patterns {
		lines = append(lines, fmt.Sprintf("%d. PATTERN: %s", i+1, p.Template))
		lines = append(lines, fmt.Sprintf("   Description: %s", p.Description))

		if len(p.IntentPhrases) > 0 {
			lines = append(lines, "   Intent Examples:")
			examples := p.IntentPhrases
			if len(examples) > maxIntentExamplesPerPattern {
				examples = examples[:maxIntentExamplesPerPattern]
			}
			for _, ex := range examples {
				lines = append(lines, fmt.Sprintf("     - %q", ex))
			}
		}

		if len(p.Parameters) > 0 {
			lines = append(lines, "   Parameters:")
			for _, name := range TemplateParamNames(p.Template) {
				spec, ok := p.Parameters[name]
				if !ok {
					continue
				}
				reqText := "optional"
				if spec.Required {
					reqText = "REQUIRED"
				}
				examplesText := ""
				if len(spec.Examples) > 0 {
					n := len(spec.Examples)
					if n > 3 {
						n = 3
					}
					examplesText = fmt.Sprintf(" (examples: %s)", strings.Join(spec.Examples[:n], ", "))
				}
				lines = append(lines, fmt.Sprintf("     - %s: %s (%s)%s", name, spec.Type, reqText, examplesText))
			}
		}
		lines = append(lines, "")
	}

	lines = append(lines,
		"ROUTE VALIDATION RULES:",
		"- You MUST return a route that EXACTLY matches one of the patterns above.",
		"- NEVER invent new route patterns.",
		"- If unsure, use a search route.",
		"",
	)

	return strings.Join(lines, "\n")
}
