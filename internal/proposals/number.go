package proposals

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewNumber formats a human-facing proposal number: PROP-<year>-<3 digits>-<3 hex>.
func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:3])
	return fmt.Sprintf("PROP-%d-%03d-%s", now.Year(), 100+rand.IntN(900), suffix)
}
