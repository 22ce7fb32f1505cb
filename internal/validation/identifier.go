// Package validation checks keyspace names and classifies identifiers for
// quoting. It never touches predicate fragments: those are caller text and
// are passed through untouched.
package validation

import (
	"regexp"
	"strings"
)

const (
	maxBucketLength = 100
	maxScopeLength  = 251
)

var (
	// bucketRegex allows letters, digits, underscore, period, dash and percent.
	bucketRegex = regexp.MustCompile(`^[A-Za-z0-9_.%-]+$`)

	// collectionRegex is the scope/collection alphabet: no period.
	collectionRegex = regexp.MustCompile(`^[A-Za-z0-9_%-]+$`)

	// plainRegex matches identifiers N1QL accepts without backticks.
	plainRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidateBucket checks a bucket name against the server naming rules.
func ValidateBucket(name string) error {
	switch {
	case name == "":
		return &IdentifierError{Kind: "bucket", Reason: "name cannot be empty"}
	case len(name) > maxBucketLength:
		return &IdentifierError{Kind: "bucket", Identifier: name, Reason: "name exceeds 100 characters"}
	case !bucketRegex.MatchString(name):
		return &IdentifierError{Kind: "bucket", Identifier: name, Reason: "only letters, digits and _ . % - are allowed"}
	}
	return nil
}

// ValidateScope checks a scope name.
func ValidateScope(name string) error {
	return validateCollectionLike("scope", name)
}

// ValidateCollection checks a collection name.
func ValidateCollection(name string) error {
	return validateCollectionLike("collection", name)
}

func validateCollectionLike(kind, name string) error {
	switch {
	case name == "":
		return &IdentifierError{Kind: kind, Reason: "name cannot be empty"}
	case name == "_default":
		return nil
	case len(name) > maxScopeLength:
		return &IdentifierError{Kind: kind, Identifier: name, Reason: "name exceeds 251 characters"}
	case !collectionRegex.MatchString(name):
		return &IdentifierError{Kind: kind, Identifier: name, Reason: "only letters, digits and _ % - are allowed"}
	case name[0] == '_' || name[0] == '%':
		return &IdentifierError{Kind: kind, Identifier: name, Reason: "name cannot start with _ or %"}
	}
	return nil
}

// IsExpression reports whether a projected column is an expression
// ("COUNT(*) AS n", "META().id") rather than a field path.
func IsExpression(column string) bool {
	return strings.ContainsAny(column, " ()`")
}

// NeedsEscape reports whether a single path element must be wrapped in
// backticks: reserved words and anything outside the plain identifier alphabet.
func NeedsEscape(part string) bool {
	return IsReservedWord(part) || !plainRegex.MatchString(part)
}

// IdentifierError describes a rejected name.
type IdentifierError struct {
	Kind       string
	Identifier string
	Reason     string
}

// Error implements error.
func (e *IdentifierError) Error() string {
	if e.Identifier == "" {
		return "couchhelper: invalid " + e.Kind + " name: " + e.Reason
	}
	return "couchhelper: invalid " + e.Kind + " name '" + e.Identifier + "': " + e.Reason
}
