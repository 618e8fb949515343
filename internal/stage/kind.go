package stage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a stage name does not map to a Kind.
var ErrUnknownKind = errors.New("unknown stage kind")

// Kind selects the executor behind a stage.
type Kind int

// Supported stage kinds, in pipeline order.
const (
	KindQuery Kind = iota + 1
	KindImpute
	KindDownload
	KindAnalysis
	KindStatistics
)

var kindNames = map[Kind]string{
	KindQuery:      "query",
	KindImpute:     "impute",
	KindDownload:   "download",
	KindAnalysis:   "analysis",
	KindStatistics: "statistics",
}

// Kinds lists every kind in pipeline order.
func Kinds() []Kind {
	return []Kind{KindQuery, KindImpute, KindDownload, KindAnalysis, KindStatistics}
}

// String returns the configuration section name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a stage name (case-insensitive) to its Kind.
func ParseKind(name string) (Kind, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == needle {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}
