package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the shape of a raw JSON document.
type Kind uint8

// Document shapes.
const (
	KindUnknown Kind = iota
	// KindList is a top-level array of finding objects.
	KindList
	// KindResultsObject is an object exposing a "results" array.
	KindResultsObject
	// KindSARIF is an object exposing a "runs" array.
	KindSARIF
)

// ErrMalformed is returned when a raw result file cannot be decoded.
var ErrMalformed = errors.New("malformed result document")

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindResultsObject:
		return "results-object"
	case KindSARIF:
		return "sarif"
	default:
		return "unknown"
	}
}

// Document is a raw JSON or SARIF result file with its shape resolved once
// at parse time. Items holds the finding objects of list and results-object
// documents; Runs and the header fields are set for SARIF documents.
type Document struct {
	Kind    Kind
	Items   []map[string]any
	Runs    []map[string]any
	Schema  string
	Version string
}

// ParseDocument decodes data and resolves its shape. Non-object entries of
// finding lists are discarded.
func ParseDocument(data []byte) (Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw any

	decodeErr := decoder.Decode(&raw)
	if decodeErr != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrMalformed, decodeErr)
	}

	switch value := raw.(type) {
	case []any:
		return Document{Kind: KindList, Items: objects(value)}, nil
	case map[string]any:
		if runs, ok := value["runs"].([]any); ok {
			return Document{
				Kind:    KindSARIF,
				Runs:    objects(runs),
				Schema:  text(value["$schema"]),
				Version: text(value["version"]),
			}, nil
		}

		if results, ok := value["results"].([]any); ok {
			return Document{Kind: KindResultsObject, Items: objects(results)}, nil
		}

		return Document{Kind: KindUnknown}, nil
	default:
		return Document{Kind: KindUnknown}, nil
	}
}

// FlatItems returns the finding objects a JSON report merges. SARIF and
// unknown documents contribute nothing in JSON mode.
func (d Document) FlatItems() []map[string]any {
	if d.Kind == KindList || d.Kind == KindResultsObject {
		return d.Items
	}

	return nil
}

func objects(values []any) []map[string]any {
	out := make([]map[string]any, 0, len(values))

	for _, value := range values {
		if obj, ok := value.(map[string]any); ok {
			out = append(out, obj)
		}
	}

	return out
}

// text renders a scalar JSON value as a string; absent and null values and
// containers render empty.
func text(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		if typed {
			return "True"
		}

		return "False"
	default:
		return ""
	}
}

func object(value any) map[string]any {
	obj, _ := value.(map[string]any)

	return obj
}

func array(value any) []any {
	arr, _ := value.([]any)

	return arr
}
