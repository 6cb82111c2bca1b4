package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// CompileString compiles a CUE program document held in memory.
// filename labels positions in errors and may be empty.
func CompileString(src, filename string) (*Unit, error) {
	ctx := cuecontext.New()
	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}
	v := ctx.CompileString(src, opts...)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(v)
}

// CompileFile compiles a single .cue file.
func CompileFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	return CompileString(string(data), path)
}

// LoadDir loads every .cue file in dir as one CUE instance and compiles it.
func LoadDir(dir string) (*Unit, error) {
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(v)
}

// Load compiles path, which may be a .cue file or a directory of them.
func Load(path string) (*Unit, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("program not found: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	if filepath.Ext(path) != ".cue" {
		return nil, fmt.Errorf("program %s: expected a .cue file or directory", path)
	}
	return CompileFile(path)
}
