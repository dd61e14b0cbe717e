package report

import (
	"strconv"
	"strings"
)

// CSVHeader is the fixed header of every merged CSV report.
var CSVHeader = []string{
	"Name", "Description", "Severity", "Message", "Path",
	"Start line", "Start column", "End line", "End column",
}

// Location is a source span.
type Location struct {
	Path        string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

// Finding is a normalized finding record, whatever format it came from.
type Finding struct {
	Name        string
	Description string
	Severity    string
	Message     string
	Location    Location
}

func findingFromRow(row []string) Finding {
	field := func(idx int) string {
		if idx < len(row) {
			return row[idx]
		}

		return ""
	}

	return Finding{
		Name:        field(0),
		Description: field(1),
		Severity:    field(2),
		Message:     field(3),
		Location: Location{
			Path:        field(4),
			StartLine:   atoi(field(5)),
			StartColumn: atoi(field(6)),
			EndLine:     atoi(field(7)),
			EndColumn:   atoi(field(8)),
		},
	}
}

func findingFromItem(item map[string]any) Finding {
	loc := object(item["location"])

	return Finding{
		Name:        text(item["name"]),
		Description: text(item["description"]),
		Severity:    ItemSeverity(item),
		Message:     messageText(item["message"]),
		Location: Location{
			Path:        firstNonEmpty([]string{text(loc["path"]), text(item["path"])}),
			StartLine:   atoi(text(loc["startLine"])),
			StartColumn: atoi(text(loc["startColumn"])),
			EndLine:     atoi(text(loc["endLine"])),
			EndColumn:   atoi(text(loc["endColumn"])),
		},
	}
}

func findingFromResult(result map[string]any, rules map[string]string) Finding {
	finding := Finding{
		Name:     firstNonEmpty([]string{text(result["ruleId"]), text(object(result["rule"])["id"])}),
		Severity: firstNonEmpty(ResultCandidates(result, rules)),
		Message:  messageText(result["message"]),
	}

	locations := array(result["locations"])
	if len(locations) == 0 {
		return finding
	}

	physical := object(object(locations[0])["physicalLocation"])
	region := object(physical["region"])

	finding.Location = Location{
		Path:        text(object(physical["artifactLocation"])["uri"]),
		StartLine:   atoi(text(region["startLine"])),
		StartColumn: atoi(text(region["startColumn"])),
		EndLine:     atoi(text(region["endLine"])),
		EndColumn:   atoi(text(region["endColumn"])),
	}

	return finding
}

// messageText accepts both plain strings and SARIF {"text": ...} messages.
func messageText(value any) string {
	if msg := text(value); msg != "" {
		return msg
	}

	return text(object(value)["text"])
}

func atoi(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}

	return n
}
