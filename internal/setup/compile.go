package setup

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tabletop/internal/ir"
)

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile turns the value of a "setup" struct into an ir.Setup. World is
// nil when the struct has no world field.
func Compile(v cue.Value) (ir.Setup, error) {
	if err := v.Err(); err != nil {
		return ir.Setup{}, formatCUEError(err)
	}
	var s ir.Setup

	catalog := v.LookupPath(cue.ParsePath("catalog"))
	if !catalog.Exists() {
		return ir.Setup{}, &CompileError{Field: "catalog", Message: "catalog is required", Pos: v.Pos()}
	}
	name, err := catalog.String()
	if err != nil {
		return ir.Setup{}, formatCUEError(err)
	}
	s.Catalog = name

	if seed := v.LookupPath(cue.ParsePath("seed")); seed.Exists() {
		if k := seed.IncompleteKind(); k != cue.IntKind {
			return ir.Setup{}, &CompileError{Field: "seed", Message: fmt.Sprintf("seed must be an int, got %v", k), Pos: seed.Pos()}
		}
		n, err := seed.Int64()
		if err != nil {
			return ir.Setup{}, formatCUEError(err)
		}
		s.Seed = n
	}

	players := v.LookupPath(cue.ParsePath("players"))
	if !players.Exists() {
		return ir.Setup{}, &CompileError{Field: "players", Message: "players is required", Pos: v.Pos()}
	}
	iter, err := players.List()
	if err != nil {
		return ir.Setup{}, formatCUEError(err)
	}
	for iter.Next() {
		p, err := iter.Value().String()
		if err != nil {
			return ir.Setup{}, formatCUEError(err)
		}
		s.Players = append(s.Players, p)
	}

	if world := v.LookupPath(cue.ParsePath("world")); world.Exists() {
		val, err := toIR(world, "world")
		if err != nil {
			return ir.Setup{}, err
		}
		obj, ok := val.(ir.IRObject)
		if !ok {
			return ir.Setup{}, &CompileError{Field: "world", Message: "world must be a struct", Pos: world.Pos()}
		}
		s.World = obj
	}
	return s, nil
}

// toIR converts a concrete CUE value. Floats and non-concrete values are
// errors.
func toIR(v cue.Value, field string) (ir.IRValue, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch k := v.IncompleteKind(); k {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := toIR(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			label := iter.Label()
			elem, err := toIR(iter.Value(), field+"."+label)
			if err != nil {
				return nil, err
			}
			obj[label] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "floats are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", k),
			Pos:     v.Pos(),
		}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// first error with position info
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
