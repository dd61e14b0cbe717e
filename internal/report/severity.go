package report

import "github.com/Sumatoshi-tech/hydraql/internal/severity"

const problemSeverityKey = "problem.severity"

// ItemSeverity returns the severity of a JSON finding: severity, then level,
// then properties.severity, whichever is first non-empty.
func ItemSeverity(item map[string]any) string {
	if sev := text(item["severity"]); sev != "" {
		return sev
	}

	if level := text(item["level"]); level != "" {
		return level
	}

	return text(object(item["properties"])["severity"])
}

// RuleSeverities maps each rule id (or name) of a SARIF run to its severity:
// properties.severity, then properties["problem.severity"], then the rule's
// default configuration level.
func RuleSeverities(run map[string]any) map[string]string {
	driver := object(object(run["tool"])["driver"])
	rules := make(map[string]string)

	for _, entry := range array(driver["rules"]) {
		rule := object(entry)
		if rule == nil {
			continue
		}

		id := text(rule["id"])
		if id == "" {
			id = text(rule["name"])
		}

		if id == "" {
			continue
		}

		props := object(rule["properties"])

		sev := text(props["severity"])
		if sev == "" {
			sev = text(props[problemSeverityKey])
		}

		if sev == "" {
			sev = text(object(rule["defaultConfiguration"])["level"])
		}

		rules[id] = sev
	}

	return rules
}

// ResultCandidates lists every severity value a SARIF result carries, in
// precedence order, followed by its rule's severity when known.
func ResultCandidates(result map[string]any, rules map[string]string) []string {
	props := object(result["properties"])

	candidates := []string{
		text(result["severity"]),
		text(result["level"]),
		text(props["severity"]),
		text(props[problemSeverityKey]),
	}

	ruleID := text(result["ruleId"])
	if ruleID == "" {
		ruleID = text(object(result["rule"])["id"])
	}

	if sev, ok := rules[ruleID]; ok && ruleID != "" {
		candidates = append(candidates, sev)
	}

	return candidates
}

func firstNonEmpty(values []string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

func acceptItem(matcher severity.Matcher, item map[string]any) bool {
	return matcher.Accepts(ItemSeverity(item))
}

func acceptResult(matcher severity.Matcher, result map[string]any, rules map[string]string) bool {
	return matcher.AcceptsAny(ResultCandidates(result, rules)...)
}
