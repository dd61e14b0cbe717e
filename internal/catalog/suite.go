package catalog

import (
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/hydraql/internal/lang"
)

var packPattern = regexp.MustCompile(`^codeql/([a-z]+)-(?:queries|all)\b`)

// suiteInstruction is one entry of a query suite descriptor.
type suiteInstruction struct {
	Description string `yaml:"description"`
	From        string `yaml:"from"`
	Qlpack      string `yaml:"qlpack"`
	Import      string `yaml:"import"`
	Apply       string `yaml:"apply"`
}

func parseSuite(data []byte) ([]suiteInstruction, bool) {
	var instructions []suiteInstruction

	err := yaml.Unmarshal(data, &instructions)
	if err != nil {
		return nil, false
	}

	return instructions, true
}

func suiteDescription(data []byte) string {
	instructions, ok := parseSuite(data)
	if !ok {
		return ""
	}

	for _, inst := range instructions {
		if inst.Description != "" {
			return inst.Description
		}
	}

	return ""
}

// suiteLanguage infers the language from the pack a suite pulls queries from,
// such as codeql/java-queries.
func suiteLanguage(data []byte) (string, bool) {
	instructions, ok := parseSuite(data)
	if !ok {
		return "", false
	}

	for _, inst := range instructions {
		for _, pack := range []string{inst.From, inst.Qlpack, inst.Import, inst.Apply} {
			match := packPattern.FindStringSubmatch(pack)
			if match != nil && lang.IsKnown(match[1]) {
				return lang.Canonical(match[1]), true
			}
		}
	}

	return "", false
}
