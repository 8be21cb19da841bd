package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml templates/template.schema.json
var templateFS embed.FS

// builtinOrder fixes the registration order of the embedded templates.
var builtinOrder = []string{"en.yaml", "ch.yaml"}

// templateFile is the on-disk form of a template plus its mappings.
type templateFile struct {
	Template
	Mappings []mappingDecl `json:"mappings,omitempty"`
}

type mappingDecl struct {
	To     string            `json:"to"`
	Fields map[string]string `json:"fields"`
}

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func templateSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		raw, err := templateFS.ReadFile("templates/template.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("failed to read template schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("template.schema.json", bytes.NewReader(raw)); err != nil {
			compileErr = fmt.Errorf("failed to load template schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("template.schema.json")
	})
	return compiledSchema, compileErr
}

// parseTemplateFile decodes a YAML template document and validates it
// against the template JSON Schema.
func parseTemplateFile(name string, data []byte) (*templateFile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: invalid yaml: %w", name, err)
	}

	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	sch, err := templateSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(generic); err != nil {
		return nil, fmt.Errorf("%s: template does not match schema: %w", name, err)
	}

	var tf templateFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &tf, nil
}

func (r *Registry) registerFile(name string, data []byte) error {
	tf, err := parseTemplateFile(name, data)
	if err != nil {
		return err
	}
	mappings := make(map[string]map[FieldID]FieldID, len(tf.Mappings))
	for _, m := range tf.Mappings {
		fields := make(map[FieldID]FieldID, len(m.Fields))
		for src, dst := range m.Fields {
			fields[FieldID(src)] = FieldID(dst)
		}
		if err := validateMapping(tf.ID, m.To, fields); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		mappings[m.To] = fields
	}

	if err := r.Register(tf.Template); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, m := range tf.Mappings {
		if err := r.AddMapping(tf.ID, m.To, mappings[m.To]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// NewBuiltinRegistry creates a registry with the embedded templates
// (en, ch) and the en<->ch field mapping.
func NewBuiltinRegistry(logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for _, name := range builtinOrder {
		data, err := templateFS.ReadFile(path.Join("templates", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read builtin template %s: %w", name, err)
		}
		if err := r.registerFile(name, data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir registers every *.yaml template file in dir, in name order, and
// returns how many were registered. Loading stops at the first bad file;
// the files before it stay registered. A missing directory is not an error.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read templates directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return loaded, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := r.registerFile(name, data); err != nil {
			return loaded, err
		}
		loaded++
		r.logger.Debug("loaded template file", "file", name)
	}
	return loaded, nil
}
