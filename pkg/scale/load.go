package scale

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed scale.schema.json
var schemaJSON []byte

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Extensions recognized by Load and LoadDir.
var Extensions = []string{".yaml", ".yml", ".json", ".toml"}

func parserFor(name string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return kjson.Parser()
	default:
		return toml.Parser()
	}
}

// Load reads a scale definition file, checks it against the definition schema,
// applies defaults, and validates it.
func Load(p string) (*Scale, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(p), parserFor(p)); err != nil {
		return nil, fmt.Errorf("reading scale %s: %w", p, err)
	}
	s, err := decode(k)
	if err != nil {
		return nil, fmt.Errorf("scale %s: %w", p, err)
	}
	return s, nil
}

// LoadDir loads every definition file directly inside dir, sorted by name.
func LoadDir(dir string) ([]*Scale, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scale dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	scales := make([]*Scale, 0, len(names))
	for _, name := range names {
		s, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		scales = append(scales, s)
	}
	return scales, nil
}

// Parse decodes a definition held in memory. name selects the parser by extension.
func Parse(name string, data []byte) (*Scale, error) {
	k := koanf.New(".")
	if err := k.Load(bytesProvider(data), parserFor(name)); err != nil {
		return nil, fmt.Errorf("parsing scale %s: %w", name, err)
	}
	s, err := decode(k)
	if err != nil {
		return nil, fmt.Errorf("scale %s: %w", name, err)
	}
	return s, nil
}

// Builtin returns the scales shipped with the binary.
func Builtin() ([]*Scale, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, err
	}
	scales := make([]*Scale, 0, len(entries))
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return nil, err
		}
		s, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		scales = append(scales, s)
	}
	return scales, nil
}

func hasExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func decode(k *koanf.Koanf) (*Scale, error) {
	if err := checkSchema(k.Raw()); err != nil {
		return nil, err
	}
	s := &Scale{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ErrSchema is matched by documents rejected by the definition schema.
var ErrSchema = errors.New("scale document does not match schema")

var compiledSchema *jsonschema.Schema

func init() {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("scale schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("scale.schema.json", doc); err != nil {
		panic(fmt.Sprintf("scale schema: %v", err))
	}
	compiledSchema, err = c.Compile("scale.schema.json")
	if err != nil {
		panic(fmt.Sprintf("scale schema: %v", err))
	}
}

// checkSchema validates a parsed document. The document is round-tripped
// through JSON so that every parser's number types are normalized.
func checkSchema(raw map[string]interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if err := compiledSchema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// bytesProvider serves an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("bytes provider does not support Read()")
}
