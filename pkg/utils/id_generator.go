package utils

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// NewTransactionID returns a sortable, collision-free transaction id.
// Format: TXN-<26 char ULID>.
func NewTransactionID() string {
	return "TXN-" + newULID().String()
}

const (
	// Custom epoch: 2023-01-01 UTC in ms, keeps the number body short.
	accountEpoch  int64 = 1672531200000
	sequenceBits        = 10
	sequenceMask        = (1 << sequenceBits) - 1
)

var accountSeq uint64

// NewAccountNumber builds a numeric account number from a millisecond
// timestamp and a monotonic sequence, closed with a Luhn check digit. The
// monotonic source is deterministic and collision-free, so there is no
// generate-and-retry-on-collision loop.
// Format: ACC<15 digits><check digit>.
func NewAccountNumber() string {
	ms := time.Now().UnixMilli() - accountEpoch
	seq := atomic.AddUint64(&accountSeq, 1) & sequenceMask

	body := (uint64(ms)<<sequenceBits | seq) % 1_000_000_000_000_000
	digits := fmt.Sprintf("%015d", body)

	return "ACC" + digits + strconv.Itoa(luhnCheckDigit(digits))
}

// luhnCheckDigit computes the Luhn check digit over a numeric string.
func luhnCheckDigit(s string) int {
	sum := 0
	double := true
	for i := len(s) - 1; i >= 0; i-- {
		d := int(s[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidAccountNumber reports whether s has the generated shape and a correct
// check digit.
func ValidAccountNumber(s string) bool {
	if len(s) != 19 || s[:3] != "ACC" {
		return false
	}
	body, check := s[3:18], s[18:]
	if _, err := strconv.ParseUint(body, 10, 64); err != nil {
		return false
	}
	want, err := strconv.Atoi(check)
	if err != nil {
		return false
	}
	return luhnCheckDigit(body) == want
}
