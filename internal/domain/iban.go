package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	ibanMinLen = 15
	ibanMaxLen = 34
	bbanLen    = 23
)

// NormalizeIBAN strips spaces and upper-cases the code.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// ValidateIBAN checks length, country prefix and the ISO 13616 mod-97 checksum.
func ValidateIBAN(iban string) error {
	iban = NormalizeIBAN(iban)
	if len(iban) < ibanMinLen || len(iban) > ibanMaxLen {
		return fmt.Errorf("%w: bad length %d", ErrInvalidIBAN, len(iban))
	}
	if !isLetter(iban[0]) || !isLetter(iban[1]) || !isDigit(iban[2]) || !isDigit(iban[3]) {
		return fmt.Errorf("%w: bad prefix", ErrInvalidIBAN)
	}
	rem, ok := mod97(iban[4:] + iban[:4])
	if !ok || rem != 1 {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidIBAN)
	}
	return nil
}

// GenerateIBAN builds a random, checksum-valid IBAN for country using the given
// five digit bank code.
func GenerateIBAN(country, bankCode string) (string, error) {
	country = strings.ToUpper(country)
	if len(country) != 2 || !isLetter(country[0]) || !isLetter(country[1]) {
		return "", fmt.Errorf("%w: bad country %q", ErrInvalidIBAN, country)
	}
	if len(bankCode) != 5 || !allDigits(bankCode) {
		return "", fmt.Errorf("%w: bad bank code %q", ErrInvalidIBAN, bankCode)
	}

	var b strings.Builder
	b.WriteString(bankCode)
	for b.Len() < bbanLen {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate iban: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	bban := b.String()

	rem, _ := mod97(bban + country + "00")
	return fmt.Sprintf("%s%02d%s", country, 98-rem, bban), nil
}

// mod97 computes the remainder of the numeric expansion of s (A=10 … Z=35).
func mod97(s string) (int, bool) {
	rem := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isDigit(c):
			rem = (rem*10 + int(c-'0')) % 97
		case isLetter(c):
			v := int(c-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return 0, false
		}
	}
	return rem, true
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
