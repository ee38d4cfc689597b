// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors. Every typed error below matches its sentinel with
// errors.Is and unwraps to its cause.
var (
	ErrLoad                = errors.New("model load failed")
	ErrAlreadyLoaded       = errors.New("graph already loaded; reset it first")
	ErrDuplicateBinding    = errors.New("duplicate binding")
	ErrBindingNotFound     = errors.New("binding not found")
	ErrEndpointNotFound    = errors.New("endpoint not found")
	ErrShapeOrTypeMismatch = errors.New("shape or type mismatch")
	ErrEvaluation          = errors.New("evaluation failed")
	ErrEmptyGraph          = errors.New("graph is empty")
	ErrNilTensor           = errors.New("nil tensor")
	ErrUnboundInput        = errors.New("model input is not bound")
)

// LoadError reports a model that could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches ErrLoad.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// DuplicateBindingError reports a name or tensor already bound in a direction.
type DuplicateBindingError struct {
	Direction Direction
	Name      string
	// Existing is the binding that conflicts.
	Existing *GraphIO
}

func (e *DuplicateBindingError) Error() string {
	if e.Existing != nil && e.Existing.Name() != e.Name {
		return fmt.Sprintf("%s %q: tensor already bound as %q", e.Direction, e.Name, e.Existing.Name())
	}
	return fmt.Sprintf("%s %q: name already bound", e.Direction, e.Name)
}

func (e *DuplicateBindingError) Unwrap() error { return ErrDuplicateBinding }

// BindingNotFoundError reports a removal that matched no binding.
type BindingNotFoundError struct {
	Direction Direction
	Name      string
}

func (e *BindingNotFoundError) Error() string {
	return fmt.Sprintf("%s %q: no such binding", e.Direction, e.Name)
}

func (e *BindingNotFoundError) Unwrap() error { return ErrBindingNotFound }

// EndpointNotFoundError reports a name the model does not declare.
type EndpointNotFoundError struct {
	Direction Direction
	Name      string
}

func (e *EndpointNotFoundError) Error() string {
	return fmt.Sprintf("%s %q: not declared by the model", e.Direction, e.Name)
}

func (e *EndpointNotFoundError) Unwrap() error { return ErrEndpointNotFound }

// ShapeOrTypeMismatchError reports a bound tensor incompatible with its
// endpoint, found during evaluation.
type ShapeOrTypeMismatchError struct {
	Direction Direction
	Name      string
	Want      string
	Got       string
	Err       error
}

func (e *ShapeOrTypeMismatchError) Error() string {
	msg := fmt.Sprintf("%s %q: got %s, want %s", e.Direction, e.Name, e.Got, e.Want)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ShapeOrTypeMismatchError) Unwrap() error { return e.Err }

// Is matches ErrShapeOrTypeMismatch.
func (e *ShapeOrTypeMismatchError) Is(target error) bool { return target == ErrShapeOrTypeMismatch }

// EvaluationError reports a failed evaluation. The graph stays loaded and its
// bindings are untouched.
type EvaluationError struct {
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate: %v", e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Is matches ErrEvaluation.
func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }
