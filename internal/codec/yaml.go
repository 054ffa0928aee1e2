package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"hydrovalley/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML valley descriptions. The document has the same
// shape as the JSON form and goes through the same validation.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports a valley from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.ValleyModel, error) {
	var doc any
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &ParseError{Kind: KindSyntax, Message: "empty document"}
		}
		return nil, &ParseError{Kind: KindSyntax, Message: err.Error(), Err: err}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		// Non-string map keys cannot be expressed in a valley description.
		return nil, &ParseError{Kind: KindSchema, Message: fmt.Sprintf("unsupported YAML structure: %v", err), Err: err}
	}
	return ParseValley(string(data))
}

// Export writes the canonical model as YAML
func (c *YAMLCodec) Export(model *domain.ValleyModel, w io.Writer) error {
	data, err := Canonical(model)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode canonical model: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
