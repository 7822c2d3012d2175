// Package identifier normalizes raw reader and keyboard input into the two
// identifier shapes the kiosk understands: 7-digit member numbers and
// 16-character card serials.
package identifier

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/width"

	"kiosk/internal/services"
)

// ID is a normalized identifier. Its length is always 7 or 16.
type ID string

// Kind distinguishes member numbers from card serials.
type Kind int

const (
	KindUnknown Kind = iota
	KindMemberNumber
	KindCardSerial
)

const (
	MemberNumberLength = 7
	CardSerialLength   = 16

	// checkedNumberLength is a member number followed by a check character,
	// as printed on membership cards.
	checkedNumberLength = MemberNumberLength + 1
)

// ErrInvalid reports input that cannot be normalized into an ID.
var ErrInvalid = fmt.Errorf("invalid identifier: %w", services.ErrValidation)

func (k Kind) String() string {
	switch k {
	case KindMemberNumber:
		return "member_number"
	case KindCardSerial:
		return "card_serial"
	default:
		return "unknown"
	}
}

// Kind reports the identifier shape derived from its length.
func (id ID) Kind() Kind {
	switch len(id) {
	case MemberNumberLength:
		return KindMemberNumber
	case CardSerialLength:
		return KindCardSerial
	default:
		return KindUnknown
	}
}

func (id ID) String() string { return string(id) }

// Normalize converts raw input into an ID. Surrounding whitespace is trimmed,
// full-width characters are folded to ASCII, and the trailing check character
// of an 8-character entry is dropped.
func Normalize(raw string) (ID, error) {
	value := width.Fold.String(strings.TrimSpace(raw))
	value = strings.TrimSpace(value)

	if len(value) == checkedNumberLength {
		value = value[:MemberNumberLength]
	}

	switch len(value) {
	case MemberNumberLength:
		if !isDigits(value) {
			return "", invalid(raw, "member number must be decimal digits")
		}
		return ID(value), nil
	case CardSerialLength:
		lower := strings.ToLower(value)
		if !isHex(lower) {
			return "", invalid(raw, "card serial must be hexadecimal")
		}
		return ID(lower), nil
	default:
		return "", invalid(raw, fmt.Sprintf("length %d is not %d or %d", len(value), MemberNumberLength, CardSerialLength))
	}
}

// FromSerialBytes renders the 8-byte IDm reported by a FeliCa reader.
func FromSerialBytes(b []byte) (ID, error) {
	if len(b)*2 != CardSerialLength {
		return "", invalid(hex.EncodeToString(b), fmt.Sprintf("serial has %d bytes", len(b)))
	}
	return ID(hex.EncodeToString(b)), nil
}

// IsInvalid reports whether err stems from rejected input.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func invalid(raw, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalid, raw, reason)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
