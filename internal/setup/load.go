package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tabletop/internal/ir"
)

// Field is the top-level struct a setup file declares.
const Field = "setup"

// LoadFile loads a setup from a .cue file, or from every .cue file of a
// directory unified together.
func LoadFile(path string) (ir.Setup, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ir.Setup{}, fmt.Errorf("load setup: %w", err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}
	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return ir.Setup{}, fmt.Errorf("load setup %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return ir.Setup{}, fmt.Errorf("load setup %s: %w", path, formatCUEError(inst.Err))
	}

	v := cuecontext.New().BuildInstance(inst)
	return fromValue(v, path)
}

// CompileString compiles setup source held in memory. name is used in
// error positions.
func CompileString(name, src string) (ir.Setup, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(name))
	return fromValue(v, name)
}

func fromValue(v cue.Value, name string) (ir.Setup, error) {
	if err := v.Err(); err != nil {
		return ir.Setup{}, fmt.Errorf("build setup %s: %w", name, formatCUEError(err))
	}
	sv := v.LookupPath(cue.ParsePath(Field))
	if !sv.Exists() {
		return ir.Setup{}, fmt.Errorf("setup %s: no top-level %q struct", name, Field)
	}
	s, err := Compile(sv)
	if err != nil {
		return ir.Setup{}, fmt.Errorf("setup %s: %w", name, err)
	}
	return s, nil
}
