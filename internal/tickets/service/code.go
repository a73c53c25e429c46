package tickets

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

var numbersPattern = regexp.MustCompile(`^\d{4}$`)

func ValidNumbers(numbers string) bool {
	return numbersPattern.MatchString(numbers)
}

func FormatNumbers(n int) string {
	return fmt.Sprintf("%04d", n)
}

func cryptoRandInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateCode builds "<prefix>-<YYYYMMDD>-<XXXX>" with a base36 suffix.
func generateCode(prefix string, at time.Time, randInt func(int) (int, error)) (string, error) {
	var suffix strings.Builder
	for i := 0; i < 4; i++ {
		idx, err := randInt(len(codeAlphabet))
		if err != nil {
			return "", fmt.Errorf("generate ticket code: %w", err)
		}
		suffix.WriteByte(codeAlphabet[idx])
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix.String()), nil
}
