package common

import (
	"errors"
	"strings"
	"unicode"
)

var ErrEmptySlug = errors.New("slug cannot be empty")

// Slug lowercases s and joins its ASCII letter and digit runs with single
// hyphens. Credential and consumer names are stored in this form so that
// "Acme Prod" and "acme-prod" name the same row.
func Slug(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	return strings.Join(words, "-")
}

// SlugOr returns Slug(s), or Slug(fallback) when s has no usable characters.
func SlugOr(s, fallback string) (string, error) {
	if slug := Slug(s); slug != "" {
		return slug, nil
	}
	if slug := Slug(fallback); slug != "" {
		return slug, nil
	}
	return "", ErrEmptySlug
}
