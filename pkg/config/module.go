package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	J "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/yaml"
)

var (
	ErrMissingFile   = errors.New("file does not exist")
	ErrUnknownFormat = errors.New("format is not JSON or YAML")
)

//go:embed schema.cue
var schemaFile string

//go:embed default.yaml
var DEFAULT []byte

// document is one layer of configuration. Its name picks the format.
type document struct {
	name string
	data []byte
}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return document{}, ErrMissingFile
	}
	if err != nil {
		return document{}, err
	}
	return document{name: path, data: data}, nil
}

func (d document) build(ctx *cue.Context) (cue.Value, error) {
	var value cue.Value

	switch strings.ToLower(filepath.Ext(d.name)) {
	case ".json":
		expr, err := J.Extract(d.name, d.data)
		if err != nil {
			return value, err
		}
		value = ctx.BuildExpr(expr)
	case ".yaml", ".yml":
		file, err := yaml.Extract(d.name, d.data)
		if err != nil {
			return value, err
		}
		value = ctx.BuildFile(file)
	default:
		return value, ErrUnknownFormat
	}

	return value, value.Err()
}

// layer unifies documents over the schema in order. Each one has to fit on
// its own; only the result has to be concrete.
func layer(documents []document) (cue.Value, error) {
	ctx := cuecontext.New()

	merged := ctx.CompileString(schemaFile, cue.Filename("schema.cue"))
	if err := merged.Err(); err != nil {
		return merged, fmt.Errorf("schema does not compile: %w", err)
	}

	for _, doc := range documents {
		value, err := doc.build(ctx)
		if err != nil {
			return merged, fmt.Errorf("could not read %s: %w", doc.name, err)
		}

		merged = merged.Unify(value)
		if err := merged.Validate(); err != nil {
			return merged, fmt.Errorf("%s does not match the schema: %w", doc.name, err)
		}
	}

	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return merged, fmt.Errorf("config is incomplete: %w", err)
	}
	return merged, nil
}

func decode(value cue.Value) (*Config, error) {
	data, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("could not export config: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Parse checks a single in-memory document against the schema.
func Parse(name string, data []byte) (*Config, error) {
	value, err := layer([]document{{name: name, data: data}})
	if err != nil {
		return nil, err
	}
	return decode(value)
}

// Process layers the given files in order over the schema, whose defaults
// fill whatever they leave out. With no files the embedded default.yaml is
// used.
func Process(paths []string) (*Config, error) {
	if len(paths) == 0 {
		return Parse("default.yaml", DEFAULT)
	}

	documents := make([]document, 0, len(paths))
	for _, path := range paths {
		doc, err := readDocument(path)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		documents = append(documents, doc)
	}

	value, err := layer(documents)
	if err != nil {
		return nil, err
	}
	return decode(value)
}
