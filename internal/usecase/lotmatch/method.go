package lotmatch

import (
	"fmt"
	"strings"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// Method is a lot selection policy
type Method string

const (
	FIFO         Method = "FIFO"
	LIFO         Method = "LIFO"
	SpecificID   Method = "SPECIFIC_ID"
	AverageCost  Method = "AVERAGE_COST"
	MinimizeGain Method = "MINIMIZE_GAIN"
	MaximizeGain Method = "MAXIMIZE_GAIN"
	HIFO         Method = "HIFO"
)

// Methods lists every supported policy
var Methods = []Method{FIFO, LIFO, SpecificID, AverageCost, MinimizeGain, MaximizeGain, HIFO}

func (m Method) String() string { return string(m) }

// ParseMethod accepts the canonical names case-insensitively, with '-' or ' ' for '_'
func ParseMethod(s string) (Method, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, m := range Methods {
		if string(m) == normalized {
			return m, nil
		}
	}
	switch normalized {
	case "SPECIFIC", "SPEC_ID":
		return SpecificID, nil
	case "AVERAGE", "AVG":
		return AverageCost, nil
	}
	return "", fmt.Errorf("%w: unknown lot selection method %q", domain.ErrInvalidLotSelection, s)
}
