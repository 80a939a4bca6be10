package compiler

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/snek/compiler/asm"
	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/back"
	"github.com/slowlang/snek/compiler/front"
	"github.com/slowlang/snek/compiler/parse"
)

type (
	Options struct {
		// Target selects the symbol naming convention: "linux" (default) or "darwin".
		Target string
	}
)

func CompileFile(ctx context.Context, name string, opts Options) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, opts)
}

// Compile turns program text into an assembly listing.
func Compile(ctx context.Context, name string, text []byte, opts Options) (obj []byte, err error) {
	ao, err := opts.asm()
	if err != nil {
		return nil, err
	}

	p, err := Build(ctx, name, text)
	if err != nil {
		return nil, err
	}

	return asm.Format(nil, p, ao), nil
}

// ParseText reads and builds the AST without generating code.
func ParseText(ctx context.Context, name string, text []byte) (*ast.Program, error) {
	_, prog, err := parseText(ctx, name, text)

	return prog, err
}

// Build compiles program text into instructions.
func Build(ctx context.Context, name string, text []byte) (*asm.Program, error) {
	ctx, prog, err := parseText(ctx, name, text)
	if err != nil {
		return nil, err
	}

	p, err := back.New().CompileProgram(ctx, prog)
	if err != nil {
		return nil, errors.Wrap(err, "compile")
	}

	return p, nil
}

// WriteFile replaces name with obj.
// Data goes to a temporary file renamed over name, so readers never see a partial listing.
// Concurrent writers of the same name are serialized by LockPath(name).
func WriteFile(ctx context.Context, name string, obj []byte) (err error) {
	lp, err := LockPath(name)
	if err != nil {
		return errors.Wrap(err, "lock path")
	}

	lock := flock.New(lp)

	err = lock.Lock()
	if err != nil {
		return errors.Wrap(err, "lock output")
	}

	defer func() {
		e := lock.Unlock()
		if err == nil && e != nil {
			err = errors.Wrap(e, "unlock output")
		}
	}()

	f, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp")
	}

	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	_, err = f.Write(obj)
	if e := f.Close(); err == nil && e != nil {
		err = e
	}
	if err != nil {
		return errors.Wrap(err, "write temp")
	}

	err = os.Rename(f.Name(), name)
	if err != nil {
		return errors.Wrap(err, "rename")
	}

	tlog.SpanFromContext(ctx).Printw("wrote file", "name", name, "size", len(obj))

	return nil
}

// LockPath is the lock file guarding writes to name.
// It lives in the temp dir so the output directory only gets the output.
func LockPath(name string) (string, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(abs))

	return filepath.Join(os.TempDir(), fmt.Sprintf("snek-%016x.lock", h.Sum64())), nil
}

// parseText returns ctx carrying the parse state, so later stages report file:line:col.
func parseText(ctx context.Context, name string, text []byte) (context.Context, *ast.Program, error) {
	st := parse.New()

	st.AddFile(name, text)

	ctx = parse.ContextWithState(ctx, st)

	forms, err := st.Parse(ctx)
	if err != nil {
		return ctx, nil, errors.Wrap(err, "parse text")
	}

	prog, err := front.ParseProgram(ctx, forms)
	if err != nil {
		return ctx, nil, errors.Wrap(err, "build ast")
	}

	return ctx, prog, nil
}

func (o Options) asm() (asm.Options, error) {
	switch o.Target {
	case "", "linux":
		return asm.Options{}, nil
	case "darwin", "macos":
		return asm.Options{Prefix: "_"}, nil
	default:
		return asm.Options{}, errors.New("unsupported target: %v", o.Target)
	}
}
