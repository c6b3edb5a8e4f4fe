package ruleset

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

// DocumentVersion is the current YAML rule document version.
const DocumentVersion = 1

// Document is the YAML form of a complete rule set.
type Document struct {
	Version     int               `yaml:"version"`
	Descriptors []DescriptorRules `yaml:"descriptors"`
}

// DescriptorRules holds the rules of one descriptor.
type DescriptorRules struct {
	Descriptor string       `yaml:"descriptor"`
	Fields     []FieldRules `yaml:"fields"`
}

// FieldRules holds the rules of one field, mandatory first.
type FieldRules struct {
	Field string `yaml:"field"`
	Rules []Rule `yaml:"rules"`
}

// Rule is one verification value.
type Rule struct {
	Value    string                `yaml:"value"`
	Operator verification.Operator `yaml:"operator"`
	Level    verification.Level    `yaml:"level"`
}

// Export builds the document of set in walk and field order. Empty
// descriptors and fields are omitted.
func Export(set *registry.Set) Document {
	doc := Document{Version: DocumentVersion}
	for _, reg := range set.Registries() {
		desc := reg.Descriptor()
		dr := DescriptorRules{Descriptor: desc.Type}
		for _, f := range desc.Fields {
			values, err := reg.Values(f.Name)
			if err != nil || len(values) == 0 {
				continue
			}
			fr := FieldRules{Field: f.Name}
			for _, v := range values {
				fr.Rules = append(fr.Rules, Rule{Value: v.Raw, Operator: v.Operator, Level: v.Level})
			}
			dr.Fields = append(dr.Fields, fr)
		}
		if len(dr.Fields) > 0 {
			doc.Descriptors = append(doc.Descriptors, dr)
		}
	}
	return doc
}

// WriteYAML writes set as a YAML rule document.
func WriteYAML(w io.Writer, set *registry.Set) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Export(set)); err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return enc.Close()
}

// ReadYAML replaces the content of set with the document read from r and
// returns the number of values loaded. set is unchanged on error.
func ReadYAML(r io.Reader, set *registry.Set) (int, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode rules: %w", err)
	}
	if doc.Version > DocumentVersion {
		return 0, fmt.Errorf("unsupported rule document version %d", doc.Version)
	}
	snap := registry.Snapshot{}
	n := 0
	for _, dr := range doc.Descriptors {
		reg, err := set.Lookup(dr.Descriptor)
		if err != nil {
			return 0, err
		}
		typ := reg.Descriptor().Type
		if snap[typ] == nil {
			snap[typ] = map[string][]verification.Value{}
		}
		for _, fr := range dr.Fields {
			f, err := reg.Field(fr.Field)
			if err != nil {
				return 0, err
			}
			for _, rule := range fr.Rules {
				snap[typ][f.Name] = append(snap[typ][f.Name], verification.Value{
					Raw:      rule.Value,
					Format:   f.Format,
					Operator: rule.Operator,
					Level:    rule.Level,
				})
				n++
			}
		}
	}
	if err := set.Restore(snap); err != nil {
		return 0, err
	}
	return n, nil
}
