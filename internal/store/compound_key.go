package store

import (
	"strings"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
)

// Separator joins the parts of a compound sort key. The exclusive upper bound
// of a prefix range is the prefix followed by the character immediately after
// the separator in sort order: every key beginning with "prefix:" falls in
// ["prefix:", "prefix;") and no key with a different prefix does, as long as
// the separator never appears inside a part.
const (
	Separator          = ":"
	separatorUpperNext = ";"
)

// BuildCompoundKey joins key parts with the separator, validating each part.
func BuildCompoundKey(parts ...string) (string, error) {
	for _, p := range parts {
		if err := ValidateKeyComponent(p); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, Separator), nil
}

// ValidateKeyComponent rejects identifiers that would corrupt the compound
// key scheme. An identifier containing the separator would make prefix scans
// silently return wrong results, so it is rejected at write time.
func ValidateKeyComponent(part string) error {
	if part == "" {
		return errors.InvalidInput("key component", "must not be empty")
	}
	if strings.Contains(part, Separator) {
		return errors.InvalidInput("key component",
			"must not contain the reserved separator "+Separator)
	}
	return nil
}

// PrefixRange returns the [lower, upper) sort-key bounds selecting exactly
// the compound keys that extend the given prefix parts. With one part it
// selects all keys for that department; with two, all categories of a
// department/project pair.
func PrefixRange(parts ...string) (lower, upper string, err error) {
	prefix, err := BuildCompoundKey(parts...)
	if err != nil {
		return "", "", err
	}
	return prefix + Separator, prefix + separatorUpperNext, nil
}
