package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/query"
)

// Output types
const (
	OutputDisabled = "disabled"
	OutputStdout   = "stdout"
	OutputMQueue   = "mqueue"
	OutputFile     = "file"
)

//go:embed pipeline.schema.json
var pipelineSchemaJSON string

var (
	pipelineSchemaOnce sync.Once
	pipelineSchema     *gojsonschema.Schema
	pipelineSchemaErr  error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// PipelineConfig is one pipeline definition file
type PipelineConfig struct {
	Source     string  `json:"-"`
	Enabled    bool    `json:"enabled"`
	Prefix     string  `json:"prefix" validate:"required"`
	Interval   int     `json:"interval" validate:"gte=0"`
	Trigger    VarSpec `json:"trigger"`
	Vars       VarSpec `json:"vars"`
	OutputType string  `json:"output_type" validate:"oneof=disabled stdout mqueue file"`
	Output     string  `json:"output" validate:"required_unless=OutputType disabled"`
	Header     string  `json:"header,omitempty"`
	Append     *bool   `json:"append,omitempty"`
}

// AppendMode reports whether the file sink appends (the default) or
// overwrites on each message
func (p *PipelineConfig) AppendMode() bool {
	return p.Append == nil || *p.Append
}

// Validate applies the struct rules
func (p *PipelineConfig) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			err = fmt.Errorf("%w: %s", errors.ErrInvalidArgument, strings.Join(msgs, "; "))
		}
		return errors.WrapInvalid(err, "PipelineConfig", "Validate", "check "+p.Source)
	}
	if p.Vars.IsZero() {
		return errors.WrapInvalid(fmt.Errorf("%w: vars is required", errors.ErrInvalidArgument),
			"PipelineConfig", "Validate", "check "+p.Source)
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_unless":
		return fe.Field() + " is required unless output_type is disabled"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// VarSpec is a trigger or vars entry: either a query object or a list of
// names. List elements keep their decoded JSON type so that non-string
// entries can be reported per element at resolution time.
type VarSpec struct {
	Query *query.Spec
	List  []any
}

// IsZero reports an absent spec
func (v VarSpec) IsZero() bool {
	return v.Query == nil && v.List == nil
}

// UnmarshalJSON implements json.Unmarshaler
func (v *VarSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = VarSpec{}
	case data[0] == '[':
		list := []any{}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*v = VarSpec{List: list}
	case data[0] == '{':
		var q query.Spec
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&q); err != nil {
			return err
		}
		*v = VarSpec{Query: &q}
	default:
		return fmt.Errorf("%w: expected query object or name list", errors.ErrInvalidArgument)
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (v VarSpec) MarshalJSON() ([]byte, error) {
	switch {
	case v.Query != nil:
		return json.Marshal(v.Query)
	case v.List != nil:
		return json.Marshal(v.List)
	default:
		return []byte("null"), nil
	}
}

func compiledPipelineSchema() (*gojsonschema.Schema, error) {
	pipelineSchemaOnce.Do(func() {
		pipelineSchema, pipelineSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(pipelineSchemaJSON))
	})
	return pipelineSchema, pipelineSchemaErr
}

// toJSON normalizes a pipeline document to plain JSON based on the file extension
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return json.Marshal(doc)
	default:
		return jsonc.ToJSON(data), nil
	}
}

// ParsePipeline decodes and validates one pipeline document. source names
// the document in errors and selects the format by extension.
func ParsePipeline(source string, data []byte) (*PipelineConfig, error) {
	doc, err := toJSON(source, data)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err), "config", "ParsePipeline", source)
	}
	if err := validateJSONDepth(doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err), "config", "ParsePipeline", source)
	}

	schema, err := compiledPipelineSchema()
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "ParsePipeline", "compile schema")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err), "config", "ParsePipeline", source)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidArgument, strings.Join(msgs, "; ")),
			"config", "ParsePipeline", source)
	}

	var cfg PipelineConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err), "config", "ParsePipeline", source)
	}
	cfg.Source = source
	if cfg.OutputType == "" {
		cfg.OutputType = OutputStdout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPipelineFile reads and validates one pipeline file
func LoadPipelineFile(path string) (*PipelineConfig, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadPipelineFile", "read "+path)
	}
	return ParsePipeline(path, data)
}

// LoadPipelineDir loads every pipeline file in dir in lexical order. Files
// that fail are skipped; their errors are joined into the returned error
// alongside the pipelines that did load. Subdirectories and files with other
// extensions are ignored.
func LoadPipelineDir(dir string) ([]*PipelineConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadPipelineDir", "read "+dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && hasConfigExtension(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		out  []*PipelineConfig
		errs []error
	)
	for _, name := range names {
		cfg, err := LoadPipelineFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, cfg)
	}
	return out, errors.Join(errs...)
}

// LoadPipelines loads the directory and the single file (either may be
// empty) and drops pipelines whose prefix was already taken.
func LoadPipelines(dir, file string) ([]*PipelineConfig, error) {
	var (
		all  []*PipelineConfig
		errs []error
	)

	if dir != "" {
		cfgs, err := LoadPipelineDir(dir)
		all = append(all, cfgs...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if file != "" {
		cfg, err := LoadPipelineFile(file)
		if err != nil {
			errs = append(errs, err)
		} else {
			all = append(all, cfg)
		}
	}

	unique, err := UniquePrefixes(all)
	if err != nil {
		errs = append(errs, err)
	}
	return unique, errors.Join(errs...)
}

// UniquePrefixes keeps the first pipeline for each prefix and reports the rest
func UniquePrefixes(cfgs []*PipelineConfig) ([]*PipelineConfig, error) {
	seen := make(map[string]string, len(cfgs))
	out := make([]*PipelineConfig, 0, len(cfgs))
	var errs []error

	for _, cfg := range cfgs {
		if first, dup := seen[cfg.Prefix]; dup {
			errs = append(errs, errors.WrapInvalid(
				fmt.Errorf("%w: prefix %q already used by %s", errors.ErrInvalidArgument, cfg.Prefix, first),
				"config", "UniquePrefixes", "check "+cfg.Source))
			continue
		}
		seen[cfg.Prefix] = cfg.Source
		out = append(out, cfg)
	}
	return out, errors.Join(errs...)
}
