package job

import (
	"crypto/rand"
	"fmt"
	"time"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const idSuffixLen = 6

// GenerateID returns a date-coded job identifier of the form
// PJ-YYYYMMDD-XXXXXX. The random suffix makes collisions unlikely but
// does not rule them out; callers must verify uniqueness against the
// store before accepting the id.
func GenerateID(now time.Time) (string, error) {
	buf := make([]byte, idSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return fmt.Sprintf("PJ-%s-%s", now.Format("20060102"), buf), nil
}
