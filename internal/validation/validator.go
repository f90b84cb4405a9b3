// Package validation provides the reusable checks run while building plans
// and executing them: column existence, length agreement between parallel
// argument lists, mutually exclusive parameters and unique output names.
package validation

import (
	"fmt"
	"strings"

	"github.com/paveg/lazybridge/internal/errors"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	HasColumn(name string) bool
	Columns() []string
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	df      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(df ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		df:      df,
		columns: columns,
		op:      op,
	}
}

// Validate checks if all columns exist
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			return errors.NewColumnNotFoundError(v.op, column)
		}
	}
	return nil
}

// LengthValidator checks that two argument lists that are consumed pairwise
// have the same length. A mismatch is a plan error.
type LengthValidator struct {
	left, right int
	leftName    string
	rightName   string
	op          string
}

// NewLengthValidator creates a validator for pairwise argument lists
func NewLengthValidator(op, leftName string, left int, rightName string, right int) *LengthValidator {
	return &LengthValidator{
		left:      left,
		right:     right,
		leftName:  leftName,
		rightName: rightName,
		op:        op,
	}
}

// Validate checks if lengths match
func (v *LengthValidator) Validate() error {
	if v.left != v.right {
		return errors.NewPlanError(v.op, fmt.Sprintf(
			"%s and %s must have the same length, got %d and %d",
			v.leftName, v.rightName, v.left, v.right))
	}
	return nil
}

// ExclusiveValidator rejects more than one of a set of optional parameters
// being present.
type ExclusiveValidator struct {
	op      string
	names   []string
	present []bool
}

// NewExclusiveValidator creates a validator over named presence flags
func NewExclusiveValidator(op string) *ExclusiveValidator {
	return &ExclusiveValidator{op: op}
}

// Param registers a parameter and whether it was supplied
func (v *ExclusiveValidator) Param(name string, present bool) *ExclusiveValidator {
	v.names = append(v.names, name)
	v.present = append(v.present, present)
	return v
}

// Validate fails with a configuration error naming every supplied parameter
// when more than one is present.
func (v *ExclusiveValidator) Validate() error {
	var set []string
	for i, p := range v.present {
		if p {
			set = append(set, v.names[i])
		}
	}
	if len(set) > 1 {
		return errors.NewConfigurationError(v.op, fmt.Sprintf(
			"parameters %s are mutually exclusive; set at most one", strings.Join(set, " and ")))
	}
	return nil
}

// UniqueNamesValidator rejects duplicate output column names
type UniqueNamesValidator struct {
	names []string
	op    string
}

// NewUniqueNamesValidator creates a validator for output names
func NewUniqueNamesValidator(op string, names ...string) *UniqueNamesValidator {
	return &UniqueNamesValidator{names: names, op: op}
}

// Validate reports the first repeated name as an execution error
func (v *UniqueNamesValidator) Validate() error {
	seen := make(map[string]struct{}, len(v.names))
	for _, name := range v.names {
		if _, dup := seen[name]; dup {
			e := errors.NewExecutionError(v.op, fmt.Sprintf("duplicate output column name %q", name))
			e.Column = name
			return e
		}
		seen[name] = struct{}{}
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for column validation
func ValidateColumns(df ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(df, op, columns...).Validate()
}

// ValidateLength is a convenience function for length validation
func ValidateLength(op, leftName string, left int, rightName string, right int) error {
	return NewLengthValidator(op, leftName, left, rightName, right).Validate()
}

// ValidateUniqueNames is a convenience function for output name validation
func ValidateUniqueNames(op string, names ...string) error {
	return NewUniqueNamesValidator(op, names...).Validate()
}
