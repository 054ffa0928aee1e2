package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"hydrovalley/internal/domain"
)

// JSONCodec handles the JSON valley description
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a whole JSON document and parses it as a valley
func (c *JSONCodec) Parse(r io.Reader) (*domain.ValleyModel, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	return ParseValley(string(data))
}

// Export writes the canonical serialization, indented
func (c *JSONCodec) Export(model *domain.ValleyModel, w io.Writer) error {
	data, err := Canonical(model)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to indent JSON: %w", err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

// ParseValley parses raw text into a validated ValleyModel.
//
// Malformed JSON yields a syntax *ParseError and no model. Missing required
// fields, unknown kinds and duplicate names yield a schema *ParseError.
// References to unknown entities are accepted and left for the index.
func ParseValley(text string) (*domain.ValleyModel, error) {
	if strings.TrimSpace(text) == "" {
		return nil, syntaxError(text, 0, "empty document", nil)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, decodeError(text, dec, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, syntaxError(text, dec.InputOffset(), "unexpected data after top-level value", err)
	}

	root, ok := doc.(map[string]any)
	if !ok {
		return nil, schemaError(fmt.Sprintf("top-level value must be an object, got %s", typeName(doc)))
	}

	p := &parser{seen: make(map[string]string)}
	return p.parseRoot(root)
}

// ParseStrict parses like ParseValley and additionally rejects dangling
// unit references, listing every one of them.
func ParseStrict(text string) (*domain.ValleyModel, error) {
	model, err := ParseValley(text)
	if err != nil {
		return nil, err
	}
	if err := ValidateReferences(model); err != nil {
		return nil, err
	}
	return model, nil
}

// ValidateReferences is the strict-mode pass over an already parsed model
func ValidateReferences(model *domain.ValleyModel) error {
	dangling := domain.NewEntityIndex(model).Dangling()
	if len(dangling) == 0 {
		return nil
	}
	entities := make([]string, 0, len(dangling))
	for _, d := range dangling {
		entities = append(entities, fmt.Sprintf("unit %q %s reference %q", d.Unit, d.Direction, d.Target))
	}
	return schemaError(fmt.Sprintf("%d dangling reference(s)", len(dangling)), entities...)
}

func decodeError(text string, dec *json.Decoder, err error) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return syntaxError(text, syn.Offset, syn.Error(), err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return syntaxError(text, int64(len(text)), "unexpected end of JSON input", err)
	}
	return syntaxError(text, dec.InputOffset(), err.Error(), err)
}

// parser tracks names across collections for duplicate detection
type parser struct {
	seen map[string]string // name -> locator of first declaration
}

// Collection keys interpreted by the parser; everything else is carried in Extra.
var collectionKeys = map[string]bool{
	"reservoirs": true,
	"units":      true,
	"junctions":  true,
	"turbines":   true,
	"pumps":      true,
}

func (p *parser) parseRoot(root map[string]any) (*domain.ValleyModel, error) {
	model := domain.NewValleyModel()

	for key, value := range root {
		if !collectionKeys[key] {
			if model.Extra == nil {
				model.Extra = make(map[string]any)
			}
			model.Extra[key] = value
		}
	}

	reservoirs, err := collection(root, "reservoirs")
	if err != nil {
		return nil, err
	}
	for i, raw := range reservoirs {
		loc := locator("reservoirs", i, raw)
		obj, err := entityObject(raw, loc)
		if err != nil {
			return nil, err
		}
		r, err := p.parseReservoir(obj, loc)
		if err != nil {
			return nil, err
		}
		model.Reservoirs = append(model.Reservoirs, r)
	}

	// Explicit units first, then the legacy per-kind arrays.
	unitSources := []struct {
		key  string
		kind domain.Kind
	}{
		{"units", ""},
		{"turbines", domain.KindTurbine},
		{"pumps", domain.KindPump},
	}
	for _, src := range unitSources {
		items, err := collection(root, src.key)
		if err != nil {
			return nil, err
		}
		for i, raw := range items {
			loc := locator(src.key, i, raw)
			obj, err := entityObject(raw, loc)
			if err != nil {
				return nil, err
			}
			u, err := p.parseUnit(obj, loc, src.kind)
			if err != nil {
				return nil, err
			}
			model.Units = append(model.Units, u)
		}
	}

	junctions, err := collection(root, "junctions")
	if err != nil {
		return nil, err
	}
	for i, raw := range junctions {
		loc := locator("junctions", i, raw)
		obj, err := entityObject(raw, loc)
		if err != nil {
			return nil, err
		}
		j, err := p.parseJunction(obj, loc)
		if err != nil {
			return nil, err
		}
		model.Junctions = append(model.Junctions, j)
	}

	return model, nil
}

func (p *parser) parseReservoir(obj *fields, loc string) (*domain.Reservoir, error) {
	name, err := p.claimName(obj, loc)
	if err != nil {
		return nil, err
	}
	if err := expectKind(obj, loc, domain.KindReservoir); err != nil {
		return nil, err
	}

	r := &domain.Reservoir{Name: name}
	if r.MinVolume, err = requiredQuantity(obj, loc, "minVolume", "min_volume"); err != nil {
		return nil, err
	}
	if r.MaxVolume, err = requiredQuantity(obj, loc, "maxVolume", "max_volume"); err != nil {
		return nil, err
	}
	if r.Cost, err = optionalQuantity(obj, loc, "cost"); err != nil {
		return nil, err
	}
	r.Extra = obj.rest()
	return r, nil
}

func (p *parser) parseUnit(obj *fields, loc string, implied domain.Kind) (*domain.Unit, error) {
	name, err := p.claimName(obj, loc)
	if err != nil {
		return nil, err
	}

	u := &domain.Unit{Name: name, Kind: implied}
	if implied != "" {
		if err := expectKind(obj, loc, implied); err != nil {
			return nil, err
		}
	} else {
		raw, key, ok := obj.take("kind")
		if !ok || raw == nil {
			return nil, schemaError("missing required field \"kind\"", loc)
		}
		s, isString := raw.(string)
		if !isString {
			return nil, schemaError(fmt.Sprintf("field %q must be a string", key), loc)
		}
		kind := domain.Kind(strings.ToLower(strings.TrimSpace(s)))
		if !kind.IsUnit() {
			return nil, schemaError(fmt.Sprintf("unknown unit kind %q (expected turbine or pump)", s), loc)
		}
		u.Kind = kind
	}

	if u.Upstream, err = optionalRef(obj, loc, "upstreamReservoir", "upstream_reservoir", "reservoir"); err != nil {
		return nil, err
	}
	if u.Downstream, err = optionalRef(obj, loc, "downstreamReservoir", "downstream_reservoir"); err != nil {
		return nil, err
	}
	if u.PowerMin, err = optionalQuantity(obj, loc, "powerMin", "power_min"); err != nil {
		return nil, err
	}
	if u.PowerMax, err = optionalQuantity(obj, loc, "powerMax", "power_max"); err != nil {
		return nil, err
	}
	if raw, key, ok := obj.take("powerLevels", "power_levels"); ok && raw != nil {
		levels, err := numberSeries(raw)
		if err != nil {
			return nil, schemaError(fmt.Sprintf("field %q must be a series of numbers", key), loc)
		}
		u.PowerLevels = levels
	}
	u.Extra = obj.rest()
	return u, nil
}

func (p *parser) parseJunction(obj *fields, loc string) (*domain.Junction, error) {
	name, err := p.claimName(obj, loc)
	if err != nil {
		return nil, err
	}
	if err := expectKind(obj, loc, domain.KindJunction); err != nil {
		return nil, err
	}
	return &domain.Junction{Name: name, Extra: obj.rest()}, nil
}

// claimName reads the required name and enforces model-wide uniqueness
func (p *parser) claimName(obj *fields, loc string) (string, error) {
	raw, _, ok := obj.take("name")
	if !ok || raw == nil {
		return "", schemaError("missing required field \"name\"", loc)
	}
	name, isString := raw.(string)
	if !isString || strings.TrimSpace(name) == "" {
		return "", schemaError("field \"name\" must be a non-empty string", loc)
	}
	if first, dup := p.seen[name]; dup {
		return "", schemaError(fmt.Sprintf("duplicate entity name %q", name), first, loc)
	}
	p.seen[name] = loc
	return name, nil
}

func expectKind(obj *fields, loc string, want domain.Kind) error {
	raw, key, ok := obj.take("kind")
	if !ok || raw == nil {
		return nil
	}
	s, isString := raw.(string)
	if !isString {
		return schemaError(fmt.Sprintf("field %q must be a string", key), loc)
	}
	if domain.Kind(strings.ToLower(strings.TrimSpace(s))) != want {
		return schemaError(fmt.Sprintf("unknown kind %q in a %s collection", s, want), loc)
	}
	return nil
}

func collection(root map[string]any, key string) ([]any, error) {
	raw, ok := root[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, isArray := raw.([]any)
	if !isArray {
		return nil, schemaError(fmt.Sprintf("%q must be an array, got %s", key, typeName(raw)), key)
	}
	return items, nil
}

func entityObject(raw any, loc string) (*fields, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, schemaError(fmt.Sprintf("entity must be an object, got %s", typeName(raw)), loc)
	}
	return newFields(obj), nil
}

// locator names an entity by position and, when readable, by name
func locator(key string, i int, raw any) string {
	if obj, ok := raw.(map[string]any); ok {
		if name, ok := obj["name"].(string); ok && name != "" {
			return fmt.Sprintf("%s[%d] %q", key, i, name)
		}
	}
	return fmt.Sprintf("%s[%d]", key, i)
}

func requiredQuantity(obj *fields, loc string, keys ...string) (domain.Quantity, error) {
	raw, _, ok := obj.take(keys...)
	if !ok || raw == nil {
		return domain.Quantity{}, schemaError(fmt.Sprintf("missing required field %q", keys[0]), loc)
	}
	q, err := quantity(raw)
	if err != nil {
		return domain.Quantity{}, schemaError(fmt.Sprintf("field %q %v", keys[0], err), loc)
	}
	return q, nil
}

func optionalQuantity(obj *fields, loc string, keys ...string) (*domain.Quantity, error) {
	raw, _, ok := obj.take(keys...)
	if !ok || raw == nil {
		return nil, nil
	}
	q, err := quantity(raw)
	if err != nil {
		return nil, schemaError(fmt.Sprintf("field %q %v", keys[0], err), loc)
	}
	return &q, nil
}

func optionalRef(obj *fields, loc string, keys ...string) (string, error) {
	raw, key, ok := obj.take(keys...)
	if !ok || raw == nil {
		return "", nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", schemaError(fmt.Sprintf("field %q must be an entity name or null", key), loc)
	}
	return s, nil
}

func quantity(raw any) (domain.Quantity, error) {
	if n, ok := raw.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return domain.Quantity{}, fmt.Errorf("is not a valid number")
		}
		return domain.Scalar(f), nil
	}
	series, err := numberSeries(raw)
	if err != nil {
		return domain.Quantity{}, fmt.Errorf("must be a number or a series of numbers")
	}
	return domain.SeriesOf(series...), nil
}

func numberSeries(raw any) ([]float64, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	out := make([]float64, 0, len(items))
	for i, item := range items {
		n, ok := item.(json.Number)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// fields consumes known keys of an entity object, leaving the rest as extras
type fields struct {
	obj  map[string]any
	used map[string]bool
}

func newFields(obj map[string]any) *fields {
	return &fields{obj: obj, used: make(map[string]bool)}
}

// take returns the first present key among aliases and marks all aliases used
func (f *fields) take(keys ...string) (any, string, bool) {
	var (
		value any
		found string
		ok    bool
	)
	for _, k := range keys {
		v, present := f.obj[k]
		f.used[k] = true
		if present && !ok {
			value, found, ok = v, k, true
		}
	}
	return value, found, ok
}

func (f *fields) rest() map[string]any {
	var extra map[string]any
	for k, v := range f.obj {
		if f.used[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

func extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
