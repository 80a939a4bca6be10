package parse

import (
	"math"

	"tlog.app/go/errors"
)

func isNumber(b []byte) bool {
	i := 0

	if i < len(b) && (b[i] == '-' || b[i] == '+') {
		i++
	}

	if i == len(b) {
		return false
	}

	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return false
		}
	}

	return true
}

// parseInt parses a decimal produced by isNumber.
func parseInt(b []byte) (int64, error) {
	neg := false
	i := 0

	switch b[0] {
	case '-':
		neg = true
		i++
	case '+':
		i++
	}

	var v uint64

	for ; i < len(b); i++ {
		d := uint64(b[i] - '0')

		if v > (math.MaxUint64-d)/10 {
			return 0, errors.New("out of range")
		}

		v = v*10 + d
	}

	if neg {
		if v > 1<<63 {
			return 0, errors.New("out of range")
		}

		return -int64(v), nil
	}

	if v > math.MaxInt64 {
		return 0, errors.New("out of range")
	}

	return int64(v), nil
}
