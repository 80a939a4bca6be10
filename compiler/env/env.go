// Package env maps identifiers to stack locations relative to the frame pointer.
//
// Env is persistent: Bind returns a new environment and never changes the receiver,
// so scopes built from the same parent don't see each other's bindings.
// The nil *Env is the empty environment.
package env

const WordSize = 8

type (
	Env struct {
		parent *Env

		name string
		off  int
	}
)

// Local is the frame offset of the k-th local slot (k >= 1).
func Local(k int) int { return -WordSize * k }

// Param is the frame offset of the i-th parameter (i >= 0).
// Saved frame pointer and return address sit between the frame pointer and the arguments.
func Param(i int) int { return 2*WordSize + WordSize*i }

// IsParam reports whether off is in the parameter zone.
func IsParam(off int) bool { return off > 0 }

func (e *Env) Bind(name string, off int) *Env {
	return &Env{
		parent: e,
		name:   name,
		off:    off,
	}
}

// Lookup resolves the innermost binding of name.
func (e *Env) Lookup(name string) (off int, ok bool) {
	for ; e != nil; e = e.parent {
		if e.name == name {
			return e.off, true
		}
	}

	return 0, false
}

// Names lists bound names, innermost first, shadowed ones included.
func (e *Env) Names() (l []string) {
	for ; e != nil; e = e.parent {
		l = append(l, e.name)
	}

	return l
}

func (e *Env) Len() (n int) {
	for ; e != nil; e = e.parent {
		n++
	}

	return n
}
