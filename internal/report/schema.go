package report

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed sarif-schema.json
var sarifSchemaJSON []byte

// ErrSchemaViolation is returned when a SARIF document fails validation.
var ErrSchemaViolation = errors.New("sarif schema violation")

var (
	sarifSchemaOnce sync.Once
	sarifSchema     *gojsonschema.Schema
	errSarifSchema  error
)

func compiledSARIFSchema() (*gojsonschema.Schema, error) {
	sarifSchemaOnce.Do(func() {
		sarifSchema, errSarifSchema = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(sarifSchemaJSON))
	})

	return sarifSchema, errSarifSchema
}

// ValidateSARIF checks data against the minimal SARIF shape the merger
// relies on: an object with a runs array whose results are objects.
func ValidateSARIF(data []byte) error {
	schema, err := compiledSARIFSchema()
	if err != nil {
		return fmt.Errorf("compile sarif schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.Field()+": "+resultErr.Description())
	}

	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; "))
}
