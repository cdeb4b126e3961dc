package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

const maxSequence = 999_999

// NumberPrefix returns the order-number prefix for orders created at t,
// e.g. "ORD-25-03-" for March 2025. Sequences restart for every prefix.
func NumberPrefix(t time.Time) string {
	return fmt.Sprintf("ORD-%02d-%02d-", t.Year()%100, int(t.Month()))
}

// NextNumber returns the order number following last within prefix. An
// empty last starts the sequence at 1. Because the sequence is zero-padded
// to six digits, the lexicographically greatest number is also the latest.
func NextNumber(prefix, last string) (string, error) {
	seq := 1
	if last != "" {
		tail, ok := strings.CutPrefix(last, prefix)
		if !ok {
			return "", errors.Errorf("order number %q does not have prefix %q", last, prefix)
		}
		n, err := strconv.Atoi(tail)
		if err != nil {
			return "", errors.Wrapf(err, "parse order number %q", last)
		}
		seq = n + 1
	}
	if seq > maxSequence {
		return "", errors.Errorf("order number sequence exhausted for %q", prefix)
	}
	return fmt.Sprintf("%s%06d", prefix, seq), nil
}
