package store

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// MaxIDLength is the longest accepted id, in bytes.
const MaxIDLength = 256

// ValidateID checks that id is a usable key. Ids are opaque: "101" and
// "0101" are distinct, and no numeric or case folding is applied.
func ValidateID(id string) error {
	switch {
	case id == "":
		return errors.New(errors.ErrCodeInvalidID, "id must not be empty", nil)
	case len(id) > MaxIDLength:
		return errors.New(errors.ErrCodeInvalidID, "id is too long", nil).
			WithDetail("length", strconv.Itoa(len(id))).
			WithDetail("max", strconv.Itoa(MaxIDLength))
	case !utf8.ValidString(id):
		return errors.New(errors.ErrCodeInvalidID, "id is not valid UTF-8", nil)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errors.New(errors.ErrCodeInvalidID, "id contains control characters", nil).
				WithDetail("id", strconv.Quote(id))
		}
	}
	return nil
}
