package operations

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
)

// scriptOperation runs a JavaScript workload. The program is compiled
// and evaluated in Before; Run calls its global run() function, or
// re-evaluates the whole program when it defines none.
type scriptOperation struct {
	metrolib.BaseOperation
	name       string
	source     string
	dir        string
	iterations int
	log        logger.Logger

	vm     *goja.Runtime
	prog   *goja.Program
	runFn  goja.Callable
	result string
}

var errNoScript = errors.New("script needs file or source_b64")

func (d Deps) newScript(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	o := &scriptOperation{dir: d.ScriptDir, log: d.Log}
	var err error
	if o.iterations, err = args.Int("iterations", 1); err != nil {
		return nil, err
	}
	file, b64 := args.Get("file", ""), args.Get("source_b64", "")
	switch {
	case b64 != "":
		src, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("%w: source_b64: %v", metrolib.ErrInvalidArgs, err)
		}
		o.name, o.source = "inline.js", string(src)
	case file != "":
		if !filepath.IsAbs(file) {
			file = filepath.Join(d.ScriptDir, file)
		}
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", metrolib.ErrInvalidArgs, err)
		}
		o.name, o.source, o.dir = filepath.Base(file), string(src), filepath.Dir(file)
	default:
		return nil, fmt.Errorf("%w: %v", metrolib.ErrInvalidArgs, errNoScript)
	}
	if o.prog, err = goja.Compile(o.name, o.source, false); err != nil {
		return nil, fmt.Errorf("%w: %v", metrolib.ErrInvalidArgs, err)
	}
	return o, nil
}

func (o *scriptOperation) Before(context.Context) (bool, error) {
	vm := goja.New()
	registry := require.NewRegistry(require.WithGlobalFolders(o.dir))
	registry.Enable(vm)
	if err := vm.Set("print", o.print); err != nil {
		return false, err
	}
	if _, err := vm.RunProgram(o.prog); err != nil {
		return false, fmt.Errorf("%s: %w", o.name, err)
	}
	if fn, ok := goja.AssertFunction(vm.Get("run")); ok {
		o.runFn = fn
	}
	o.vm = vm
	return true, nil
}

func (o *scriptOperation) print(call goja.FunctionCall) goja.Value {
	args := make([]any, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		args = append(args, a.Export())
	}
	o.log.Info("%s: %s", o.name, strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
	return goja.Undefined()
}

func (o *scriptOperation) Run(context.Context) error {
	for i := 0; i < o.iterations; i++ {
		var v goja.Value
		var err error
		if o.runFn != nil {
			v, err = o.runFn(goja.Undefined(), o.vm.ToValue(i))
		} else {
			v, err = o.vm.RunProgram(o.prog)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			o.result = v.String()
		}
	}
	return nil
}

func (o *scriptOperation) After(context.Context) error {
	o.vm, o.runFn = nil, nil
	return nil
}

func (o *scriptOperation) Debug() string {
	if o.result == "" {
		return fmt.Sprintf("script=%s&iterations=%d", o.name, o.iterations)
	}
	return fmt.Sprintf("script=%s&iterations=%d&result=%s", o.name, o.iterations, o.result)
}
