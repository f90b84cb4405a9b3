// Package pipeline runs query pipelines described in YAML or JSON files.
//
// A document names its sources and a chain of steps:
//
//	sources:
//	  trades: {csv: trades.csv}
//	  quotes: {parquet: quotes.parquet}
//	pipeline:
//	  source: trades
//	  steps:
//	    - filter: {gt: [price, {lit: 10}]}
//	    - join_asof: {other: quotes, left_on: time, right_on: time, tolerance_str: 2s}
//
// Step arguments are handed to the lazybridge API as decoded, so they are
// validated by the same coercions a program calling the API gets.
package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/paveg/lazybridge"
	"github.com/paveg/lazybridge/internal/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Document is a parsed pipeline file
type Document struct {
	Sources  map[string]Source `yaml:"sources" json:"sources"`
	Pipeline Pipeline          `yaml:"pipeline" json:"pipeline"`

	// dir resolves relative source paths
	dir string
}

// Source is a file a pipeline scans. Exactly one of CSV and Parquet is set.
type Source struct {
	CSV     string `yaml:"csv,omitempty" json:"csv,omitempty"`
	Parquet string `yaml:"parquet,omitempty" json:"parquet,omitempty"`
}

// Pipeline is a source followed by steps applied in order
type Pipeline struct {
	Source string           `yaml:"source" json:"source"`
	Steps  []map[string]any `yaml:"steps" json:"steps"`
}

// Parse decodes a YAML or JSON document. Relative source paths resolve
// against the working directory.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses the pipeline file at path. Relative source paths
// resolve against the file's directory.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.dir = filepath.Dir(path)
	return doc, nil
}

func (d *Document) validate() error {
	for name, src := range d.Sources {
		if (src.CSV == "") == (src.Parquet == "") {
			return errors.NewConfigurationError("pipeline", fmt.Sprintf(
				"source %q must set exactly one of csv and parquet", name))
		}
	}
	if d.Pipeline.Source == "" {
		return errors.NewConfigurationError("pipeline", "pipeline.source is required")
	}
	return nil
}

// SourceNames returns the declared source names in sorted order
func (d *Document) SourceNames() []string {
	names := make([]string, 0, len(d.Sources))
	for name := range d.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the logger used for step tracing
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithFrame serves source name from an in-memory frame instead of a file
func WithFrame(name string, df *lazybridge.DataFrame) Option {
	return func(b *Builder) {
		b.frames[name] = df
	}
}

// Builder turns a Document into a LazyFrame. Each source is read at most
// once per Builder.
type Builder struct {
	doc    *Document
	logger *zap.Logger
	frames map[string]*lazybridge.DataFrame
}

// NewBuilder creates a Builder for doc
func NewBuilder(doc *Document, opts ...Option) *Builder {
	b := &Builder{
		doc:    doc,
		logger: zap.NewNop(),
		frames: make(map[string]*lazybridge.DataFrame),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads the sources the pipeline needs and applies its steps. The
// result is not collected.
func (b *Builder) Build() (*lazybridge.LazyFrame, error) {
	return b.chain(b.doc.Pipeline)
}

func (b *Builder) chain(p Pipeline) (*lazybridge.LazyFrame, error) {
	lf, err := b.scan(p.Source)
	if err != nil {
		return nil, err
	}
	for i, raw := range p.Steps {
		name, args, err := splitStep(raw)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		apply, ok := steps[name]
		if !ok {
			err := errors.Annotate(errors.NewUnrecognizedOptionError("step", name, StepNames()), "pipeline")
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		lf, err = apply(b, lf, args)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		b.logger.Debug("pipeline step", zap.Int("index", i+1), zap.String("step", name))
	}
	return lf, nil
}

// scan returns a plan reading the named source
func (b *Builder) scan(name string) (*lazybridge.LazyFrame, error) {
	if df, ok := b.frames[name]; ok {
		return lazybridge.Scan(name, df), nil
	}
	src, ok := b.doc.Sources[name]
	if !ok {
		return nil, errors.NewConfigurationError("pipeline", fmt.Sprintf("unknown source %q", name))
	}

	var df *lazybridge.DataFrame
	var err error
	switch {
	case src.CSV != "":
		df, err = lazybridge.ReadCSV(b.path(src.CSV))
	default:
		df, err = lazybridge.ReadParquet(b.path(src.Parquet))
	}
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", name, err)
	}
	b.logger.Debug("source loaded", zap.String("source", name),
		zap.Int("rows", df.Len()), zap.Int("columns", df.Width()))

	b.frames[name] = df
	return lazybridge.Scan(name, df), nil
}

func (b *Builder) path(p string) string {
	if filepath.IsAbs(p) || b.doc.dir == "" {
		return p
	}
	return filepath.Join(b.doc.dir, p)
}

// splitStep unpacks a single-key step mapping
func splitStep(raw map[string]any) (string, any, error) {
	if len(raw) != 1 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", nil, errors.NewCoercionError("step", "a mapping with exactly one step name", keys)
	}
	for name, args := range raw {
		return name, args, nil
	}
	return "", nil, nil
}
