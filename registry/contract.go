package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// inputPath is used for issues that are not attributable to a property.
const inputPath = "input"

// Checker may be implemented by argument structs that have rules a JSON
// schema cannot express (mutually exclusive fields and the like). It runs
// after schema validation and decoding succeeded.
type Checker interface {
	Check() []envelope.Issue
}

// Contract is the validation contract of one operation. It is built from a
// typed argument struct: the struct is reflected into a JSON schema, which is
// compiled once and used to validate raw arguments before they are decoded.
type Contract struct {
	name     string
	typ      reflect.Type
	schema   json.RawMessage
	compiled *validator.Schema
	decode   func(raw []byte) (any, error)
}

var printer = message.NewPrinter(language.English)

// NewContract reflects A into a JSON schema and compiles it. Unknown
// properties are rejected.
func NewContract[A any]() (*Contract, error) {
	typ := reflect.TypeOf((*A)(nil)).Elem()
	if typ.Kind() != reflect.Struct || typ.Name() == "" {
		return nil, fmt.Errorf("contract %s: arguments must be a named struct", typ)
	}

	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	s := r.ReflectFromType(typ)
	schemaJSON, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	name := typ.Name()

	doc, err := validator.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("contract %s: decode schema: %w", name, err)
	}
	loc := "https://contracts.invalid/" + typ.PkgPath() + "/" + name + ".json"
	c := validator.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("contract %s: add schema: %w", name, err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("contract %s: compile schema: %w", name, err)
	}

	return &Contract{
		name:     name,
		typ:      typ,
		schema:   schemaJSON,
		compiled: compiled,
		decode: func(raw []byte) (any, error) {
			var a A
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, err
			}
			return a, nil
		},
	}, nil
}

// MustContract is NewContract that panics on error. Contracts are built from
// static types at registration time, so a failure is a programming error.
func MustContract[A any]() *Contract {
	c, err := NewContract[A]()
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the argument type name.
func (c *Contract) Name() string { return c.name }

// Schema returns the reflected JSON schema.
func (c *Contract) Schema() json.RawMessage {
	out := make(json.RawMessage, len(c.schema))
	copy(out, c.schema)
	return out
}

// Parse validates raw arguments and decodes them into the contract's
// argument type. The returned value holds the argument struct by value.
// Failures are reported as a non-empty issue list.
func (c *Contract) Parse(raw json.RawMessage) (any, []envelope.Issue) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	inst, err := validator.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, []envelope.Issue{{Path: inputPath, Message: "arguments must be a JSON object: " + err.Error()}}
	}

	if err := c.compiled.Validate(inst); err != nil {
		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			return nil, issuesFrom(ve)
		}
		return nil, []envelope.Issue{{Path: inputPath, Message: err.Error()}}
	}

	v, err := c.decode(raw)
	if err != nil {
		return nil, []envelope.Issue{{Path: inputPath, Message: err.Error()}}
	}

	if ch, ok := v.(Checker); ok {
		if issues := ch.Check(); len(issues) > 0 {
			return nil, normalizeIssues(issues)
		}
	}
	return v, nil
}

// Normalize re-encodes parsed arguments. Parsing the result again yields an
// equal value.
func (c *Contract) Normalize(v any) (json.RawMessage, error) {
	if v == nil || reflect.TypeOf(v) != c.typ {
		return nil, fmt.Errorf("contract %s: cannot normalize %T", c.name, v)
	}
	return json.Marshal(v)
}

func issuesFrom(ve *validator.ValidationError) []envelope.Issue {
	var out []envelope.Issue
	collect(ve, &out)
	if len(out) == 0 {
		out = append(out, envelope.Issue{Path: inputPath, Message: "arguments do not match the operation contract"})
	}
	return out
}

func collect(ve *validator.ValidationError, out *[]envelope.Issue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collect(cause, out)
		}
		return
	}

	base := ve.InstanceLocation
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, missing := range k.Missing {
			*out = append(*out, envelope.Issue{Path: joinPath(append(clonePath(base), missing)), Message: "is required"})
		}
	case *kind.AdditionalProperties:
		for _, extra := range k.Properties {
			*out = append(*out, envelope.Issue{Path: joinPath(append(clonePath(base), extra)), Message: "is not a recognized argument"})
		}
	default:
		*out = append(*out, envelope.Issue{Path: joinPath(base), Message: ve.ErrorKind.LocalizedString(printer)})
	}
}

func clonePath(p []string) []string {
	out := make([]string, len(p), len(p)+1)
	copy(out, p)
	return out
}

func joinPath(p []string) string {
	if len(p) == 0 {
		return inputPath
	}
	return strings.Join(p, ".")
}

func normalizeIssues(issues []envelope.Issue) []envelope.Issue {
	out := make([]envelope.Issue, len(issues))
	for i, is := range issues {
		if strings.TrimSpace(is.Path) == "" {
			is.Path = inputPath
		}
		out[i] = is
	}
	return out
}
