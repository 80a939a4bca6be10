package parse

import (
	"context"
	"fmt"
	"os"

	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/sexp"
)

type (
	State struct {
		b []byte // all files concatenated

		Grammar Parser

		files []file
	}

	file struct {
		base int
		size int
		name string
	}

	Parser interface {
		Parse(ctx context.Context, b []byte, st int) (x sexp.Node, i int, err error)
	}

	PartialReadError struct {
		End int
	}

	stateCtxKey struct{}
)

// ParseFile reads all top-level forms from a file.
func ParseFile(ctx context.Context, name string) ([]sexp.Node, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, data)
}

// Parse reads all top-level forms from text.
func Parse(ctx context.Context, text []byte) (x []sexp.Node, err error) {
	s := New()

	s.AddFile("", text)

	return s.Parse(ctx)
}

func New() *State {
	return &State{
		Grammar: Many{Of: Spaced(Expr{}, SpaceAll)},
	}
}

func (s *State) Parse(ctx context.Context) (x []sexp.Node, err error) {
	r, i, err := s.Grammar.Parse(ctx, s.b, 0)
	if err != nil {
		return nil, errors.Wrap(err, "parse at %v", s.Pos(i))
	}

	i = SpaceAll.Skip(s.b, i)

	if i != len(s.b) {
		return nil, PartialReadError{End: i}
	}

	x, _ = r.([]sexp.Node)

	return x, nil
}

func (s *State) AddFile(name string, text []byte) {
	f := file{
		name: name,
		base: len(s.b),
		size: len(text),
	}

	s.b = append(s.b, text...)

	s.files = append(s.files, f)
}

// Text returns source bytes in [pos, end), or nil if the range is not in the state.
func (s *State) Text(pos, end int) []byte {
	if pos < 0 || pos > end || end > len(s.b) {
		return nil
	}

	return s.b[pos:end]
}

// Pos renders an offset as file:line:col.
func (s *State) Pos(off int) string {
	for _, f := range s.files {
		if off < f.base || off > f.base+f.size {
			continue
		}

		line, col := LineCol(s.b[f.base:], off-f.base)

		if f.name == "" {
			return fmt.Sprintf("%d:%d", line, col)
		}

		return fmt.Sprintf("%s:%d:%d", f.name, line, col)
	}

	return fmt.Sprintf("offset %d", off)
}

// LineCol converts a byte offset into 1-based line and column numbers.
func LineCol(b []byte, off int) (line, col int) {
	line, col = 1, 1

	for i := 0; i < off && i < len(b); i++ {
		if b[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return
}

// ContextWithState lets later stages resolve node offsets into source positions.
func ContextWithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateCtxKey{}, s)
}

func StateFromContext(ctx context.Context) *State {
	s, _ := ctx.Value(stateCtxKey{}).(*State)
	return s
}

func (e PartialReadError) Error() string {
	return fmt.Sprintf("partial read: unexpected input at offset %d", e.End)
}
