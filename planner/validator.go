package planner

import (
	"regexp"
	"strings"
)

// compiledPattern pairs a RoutePattern with the anchored regexp its template
// compiles to (§4.C7).
type compiledPattern struct {
	pattern RoutePattern
	regex   *regexp.Regexp
}

// Validator checks emitted routes against the declared RoutePatterns of a
// SiteConfiguration and repairs routes that don't conform.
type Validator struct {
	config   *SiteConfiguration
	compiled []compiledPattern
}

// NewValidator compiles every route template in config to an anchored
// regexp once, so repeated IsValid calls avoid recompilation.
func NewValidator(config *SiteConfiguration) *Validator {
	v := &Validator{config: config}
	for _, p := range config.Routes {
		v.compiled = append(v.compiled, compiledPattern{pattern: p, regex: compileTemplate(p.Template)})
	}
	return v
}

// compileTemplate turns a route template's {name} segments into [^/]+ and
// anchors the result, per §4.C7.
func compileTemplate(template string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(template)
	// QuoteMeta escapes the braces too; undo that so templateParamPattern
	// (which expects literal {name}) still matches, then substitute.
	escaped = strings.ReplaceAll(escaped, `\{`, "{")
	escaped = strings.ReplaceAll(escaped, `\}`, "}")
	rewritten := templateParamPattern.ReplaceAllString(escaped, `[^/]+`)
	return regexp.MustCompile("^" + rewritten + "$")
}

// IsValid reports whether route starts with "/" and matches some declared
// pattern's compiled regex.
func (v *Validator) IsValid(route string) bool {
	if !strings.HasPrefix(route, "/") {
		return false
	}
	return v.matchingPattern(route) != nil
}

// matchingPattern returns the first declared RoutePattern whose compiled
// regex matches route, or nil.
func (v *Validator) matchingPattern(route string) *RoutePattern {
	for _, c := range v.compiled {
		if c.regex.MatchString(route) {
			p := c.pattern
			return &p
		}
	}
	return nil
}

// Repair implements the §4.C7 fallback policy, in order:
//  1. If primaryEntityType and primaryEntityID are both non-empty, try
//     /{entityType}/{entityID}/overview.
//  2. Else the first declared pattern whose name contains "search", filled
//     with primaryEntityType.
//  3. Else the first declared pattern filled with its parameters' static
//     examples.
//
// Returns the repaired route, the pattern name it conforms to, and an error
// of KindInvalidPlan if no repair produces a valid route.
func (v *Validator) Repair(primaryEntityType, primaryEntityID string) (route string, matchedPattern string, err error) {
	if primaryEntityType != "" && primaryEntityID != "" {
		candidate := "/" + primaryEntityType + "/" + primaryEntityID + "/overview"
		if p := v.matchingPattern(candidate); p != nil {
			return candidate, p.Name, nil
		}
	}

	for _, c := range v.compiled {
		if strings.Contains(strings.ToLower(c.pattern.Name), "search") {
			filled := fillWithEntityType(c.pattern.Template, primaryEntityType)
			if p := v.matchingPattern(filled); p != nil {
				return filled, p.Name, nil
			}
		}
	}

	for _, c := range v.compiled {
		filled := fillWithExamples(c.pattern)
		if p := v.matchingPattern(filled); p != nil {
			return filled, p.Name, nil
		}
	}

	return "", "", New(KindInvalidPlan, "no route pattern repair produced a valid route")
}

// fillWithEntityType substitutes every {entity_type} segment with
// entityType, leaving other segments untouched (they are filled by a later
// repair tier or cause the candidate to remain invalid). "landlords" is the
// default when no entity type is known, matching the reference planner's
// fallback route.
func fillWithEntityType(template, entityType string) string {
	if entityType == "" {
		entityType = "landlords"
	}
	return strings.ReplaceAll(template, "{entity_type}", entityType)
}

// fillWithExamples substitutes every {name} segment in pattern's template
// with that parameter's first declared example, or a static placeholder
// ("value") when none is declared.
func fillWithExamples(pattern RoutePattern) string {
	filled := pattern.Template
	for _, name := range TemplateParamNames(pattern.Template) {
		value := "value"
		if spec, ok := pattern.Parameters[name]; ok && len(spec.Examples) > 0 {
			value = spec.Examples[0]
		}
		filled = strings.ReplaceAll(filled, "{"+name+"}", value)
	}
	return filled
}
