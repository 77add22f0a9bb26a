package purchasing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bakery/backoffice/internal/domain/shared"
)

const poNumberPrefix = "PO-"

// NumberPrefix returns the month scope of a PO number, e.g. "PO-202610-"
func NumberPrefix(t time.Time) string {
	return poNumberPrefix + t.Format("200601") + "-"
}

// NextPONumber computes the number following last within t's month.
// An empty last means no order exists this month yet.
func NextPONumber(t time.Time, last string) (string, error) {
	prefix := NumberPrefix(t)
	if last == "" {
		return prefix + "0001", nil
	}

	seq, err := ParseSequence(prefix, last)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

// ParseSequence extracts the numeric sequence of number under prefix
func ParseSequence(prefix, number string) (int, error) {
	if !strings.HasPrefix(number, prefix) {
		return 0, shared.NewDomainError("INVALID_PO_NUMBER",
			fmt.Sprintf("PO number %q does not belong to %q", number, strings.TrimSuffix(prefix, "-")))
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(number, prefix))
	if err != nil || seq < 0 {
		return 0, shared.NewDomainError("INVALID_PO_NUMBER", fmt.Sprintf("PO number %q has no numeric sequence", number))
	}
	return seq, nil
}
