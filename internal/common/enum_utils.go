// Package common provides shared utilities for option-string tables used by
// the coercion layer and the plan describer.
package common

import (
	"fmt"
)

// Option pairs a host-facing option string with its strategy value.
type Option[T comparable] struct {
	Name  string
	Value T
}

// Options maps option strings to strategy values and back. Lookups are exact:
// option strings are lowercase identifiers and no folding is applied.
type Options[T comparable] struct {
	typeName string
	names    []string
	values   map[string]T
	labels   map[T]string
}

// NewOptions creates an option table. The declaration order of options is
// the order in which Names reports them.
func NewOptions[T comparable](typeName string, options ...Option[T]) *Options[T] {
	o := &Options[T]{
		typeName: typeName,
		names:    make([]string, 0, len(options)),
		values:   make(map[string]T, len(options)),
		labels:   make(map[T]string, len(options)),
	}
	for _, opt := range options {
		o.names = append(o.names, opt.Name)
		o.values[opt.Name] = opt.Value
		if _, exists := o.labels[opt.Value]; !exists {
			o.labels[opt.Value] = opt.Name
		}
	}
	return o
}

// TypeName returns the name the table was registered under.
func (o *Options[T]) TypeName() string {
	return o.typeName
}

// Parse returns the strategy value for an option string.
func (o *Options[T]) Parse(name string) (T, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Format returns the option string for a strategy value.
func (o *Options[T]) Format(value T) string {
	if name, ok := o.labels[value]; ok {
		return name
	}
	return fmt.Sprintf("unknown_%s(%#v)", o.typeName, value)
}

// Names returns the valid option strings in declaration order.
func (o *Options[T]) Names() []string {
	return append([]string(nil), o.names...)
}
