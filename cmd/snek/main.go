package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/snek/compiler"
	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/format"
	"github.com/slowlang/snek/compiler/tag"
	"github.com/slowlang/snek/compiler/vm"
)

func main() {
	verbosity := cli.NewFlag("verbosity,v", "", "log topics to enable (dump_ast, dump_asm, scope)")

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile <input.snek> <output.s>; concurrent writers of one output wait on a lock file in the temp dir",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("target", "linux", "symbol naming convention: linux or darwin"),
			verbosity,
		},
	}

	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "print the syntax tree of each file in canonical form",
		Action:      parseAct,
		Args:        cli.Args{},
		Flags:       []*cli.Flag{verbosity},
	}

	fmtCmd := &cli.Command{
		Name:        "fmt",
		Description: "print formatted source of each file",
		Action:      fmtAct,
		Args:        cli.Args{},
		Flags:       []*cli.Flag{verbosity},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile a file and execute it in the emulator",
		Action:      runAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("input", "false", "value passed as input: a number, true or false"),
			cli.NewFlag("steps", 0, "instruction limit, 0 for default"),
			verbosity,
		},
	}

	app := &cli.Command{
		Name:        "snek",
		Description: "snek compiles snek programs to x86-64 assembly",
		Commands: []*cli.Command{
			compileCmd,
			parseCmd,
			fmtCmd,
			runCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func setup(c *cli.Command) context.Context {
	if v := c.String("verbosity"); v != "" {
		tlog.SetVerbosity(v)
	}

	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	return ctx
}

func compileAct(c *cli.Command) (err error) {
	ctx := setup(c)

	if len(c.Args) != 2 {
		return errors.New("usage: snek compile <input.snek> <output.s>")
	}

	in, out := c.Args[0], c.Args[1]

	obj, err := compiler.CompileFile(ctx, in, compiler.Options{
		Target: c.String("target"),
	})
	if err != nil {
		return errors.Wrap(err, "compile %v", in)
	}

	err = compiler.WriteFile(ctx, out, obj)
	if err != nil {
		return errors.Wrap(err, "write %v", out)
	}

	return nil
}

func parseAct(c *cli.Command) (err error) {
	ctx := setup(c)

	for _, a := range c.Args {
		prog, err := parseFile(ctx, a)
		if err != nil {
			return err
		}

		for _, d := range prog.Defs {
			fmt.Printf("def: %+v\n", d)
		}

		fmt.Printf("main: %+v\n", prog.Main)
	}

	return nil
}

func fmtAct(c *cli.Command) (err error) {
	ctx := setup(c)

	for _, a := range c.Args {
		prog, err := parseFile(ctx, a)
		if err != nil {
			return err
		}

		b, err := format.Format(ctx, nil, prog)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", b)
	}

	return nil
}

func parseFile(ctx context.Context, name string) (*ast.Program, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read %v", name)
	}

	prog, err := compiler.ParseText(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse %v", name)
	}

	return prog, nil
}

func runAct(c *cli.Command) (err error) {
	ctx := setup(c)

	if len(c.Args) != 1 {
		return errors.New("usage: snek run [--input value] <input.snek>")
	}

	input, err := parseInput(c.String("input"))
	if err != nil {
		return errors.Wrap(err, "input")
	}

	text, err := os.ReadFile(c.Args[0])
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	p, err := compiler.Build(ctx, c.Args[0], text)
	if err != nil {
		return errors.Wrap(err, "compile %v", c.Args[0])
	}

	m := &vm.Machine{
		Input:     input,
		StepLimit: c.Int("steps"),
		Out:       os.Stdout,
	}

	res, err := m.Run(ctx, p)
	if err != nil {
		return errors.Wrap(err, "run")
	}

	fmt.Println(tag.Format(res))

	return nil
}

func parseInput(s string) (int64, error) {
	switch s {
	case "", "false":
		return tag.False, nil
	case "true":
		return tag.True, nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}

	if !tag.InRange(n) {
		return 0, errors.New("%v out of range", n)
	}

	return tag.EncodeInt(n), nil
}
