package pgtype

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// PostgreSQL's NUMERIC wire format groups decimal digits into base-10000
// "digits", each stored as a big-endian uint16, with a weight (the power of
// 10000 of the first digit group), a sign word, and a display scale
// (dscale, digits wanted after the decimal point).
const (
	numericPositive = 0x0000
	numericNegative = 0x4000
)

func encodeNumeric(d decimal.Decimal) []byte {
	neg := d.Sign() < 0
	abs := d.Abs()

	scale := int32(0)
	if exp := abs.Exponent(); exp < 0 {
		scale = -exp
	}
	digitStr := abs.Coefficient().Abs().String()
	if abs.Coefficient().Sign() == 0 {
		digitStr = "0"
	}

	// Pad so intPart/fracPart split lands exactly at `scale` digits from
	// the right, then extend each side to a multiple of 4 for base-10000
	// grouping.
	if int32(len(digitStr)) < scale+1 {
		digitStr = strings.Repeat("0", int(scale+1-int32(len(digitStr)))) + digitStr
	}
	splitAt := len(digitStr) - int(scale)
	intPart := digitStr[:splitAt]
	fracPart := digitStr[splitAt:]

	intPart = padLeft(intPart, ceilTo4(len(intPart)))
	fracPart = padRight(fracPart, ceilTo4(len(fracPart)))

	intGroups := groupsOf4(intPart)
	fracGroups := groupsOf4(fracPart)

	weight := len(intGroups) - 1

	// Trim leading all-zero integer groups (they don't change the value;
	// the weight still locates the remaining groups correctly).
	for len(intGroups) > 0 && intGroups[0] == 0 {
		intGroups = intGroups[1:]
		weight--
	}
	// Trim trailing all-zero fractional groups; dscale is unaffected since
	// it reflects intended display precision, not stored digit count.
	for len(fracGroups) > 0 && fracGroups[len(fracGroups)-1] == 0 {
		fracGroups = fracGroups[:len(fracGroups)-1]
	}

	digits := append(intGroups, fracGroups...)
	if len(intGroups) == 0 && len(fracGroups) == 0 {
		weight = 0
	}

	buf := make([]byte, 8+2*len(digits))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(int16(weight)))
	if neg {
		binary.BigEndian.PutUint16(buf[4:6], numericNegative)
	} else {
		binary.BigEndian.PutUint16(buf[4:6], numericPositive)
	}
	binary.BigEndian.PutUint16(buf[6:8], uint16(scale))
	for i, g := range digits {
		binary.BigEndian.PutUint16(buf[8+2*i:10+2*i], uint16(g))
	}
	return buf
}

func decodeNumeric(data []byte) (decimal.Decimal, error) {
	if len(data) < 8 {
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric payload too short (%d bytes)", len(data))
	}
	ndigits := int(binary.BigEndian.Uint16(data[0:2]))
	weight := int16(binary.BigEndian.Uint16(data[2:4]))
	sign := binary.BigEndian.Uint16(data[4:6])
	dscale := binary.BigEndian.Uint16(data[6:8])
	if len(data) != 8+2*ndigits {
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric ndigits=%d does not match payload length %d", ndigits, len(data))
	}

	mag := new(big.Int)
	base := big.NewInt(10000)
	for i := 0; i < ndigits; i++ {
		g := binary.BigEndian.Uint16(data[8+2*i : 10+2*i])
		mag.Mul(mag, base)
		mag.Add(mag, big.NewInt(int64(g)))
	}

	// mag currently represents the digits with an implied decimal point
	// after (weight+1) groups of 4; the true exponent shifts mag down by
	// 4*(ndigits-weight-1) decimal places.
	exponent := int32(4 * (int(weight) + 1 - ndigits))
	coeff := mag
	if sign == numericNegative {
		coeff = new(big.Int).Neg(mag)
	}

	d := decimal.NewFromBigInt(coeff, exponent)
	if int32(dscale) > -exponent {
		d = d.Truncate(int32(dscale)).Round(int32(dscale))
	}
	return d, nil
}

func ceilTo4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

func padLeft(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat("0", n-len(s))
}

func groupsOf4(s string) []int16 {
	if len(s) == 0 {
		return nil
	}
	groups := make([]int16, 0, len(s)/4)
	for i := 0; i < len(s); i += 4 {
		var v int
		for _, c := range s[i : i+4] {
			v = v*10 + int(c-'0')
		}
		groups = append(groups, int16(v))
	}
	return groups
}
