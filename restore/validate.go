package restore

import (
	"regexp"
	"strings"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/snaprestore"
)

var (
	identifierRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)
	regionRegex     = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)
)

// ValidateClusterID checks a cluster identifier: lowercase alphanumeric with
// hyphens, starting with a letter, at most 63 characters, no double or
// trailing hyphen.
func ValidateClusterID(id string) error {
	return validateIdentifier("cluster identifier", id)
}

// ValidateSnapshotID applies the same identifier rules as cluster names.
func ValidateSnapshotID(id string) error {
	return validateIdentifier("snapshot identifier", id)
}

func validateIdentifier(what, id string) error {
	if id == "" {
		return errors.Wrap(snaprestore.ErrValidation, what+" is empty")
	}

	if !identifierRegex.MatchString(id) ||
		strings.Contains(id, "--") ||
		strings.HasSuffix(id, "-") {
		return errors.Wrap(snaprestore.ErrValidation, "malformed "+what, j.KV("value", id))
	}

	return nil
}

// ValidateRegion checks a region code such as "us-east-1" or "eu-west-2".
func ValidateRegion(region string) error {
	if region == "" {
		return errors.Wrap(snaprestore.ErrValidation, "region is empty")
	}

	if !regionRegex.MatchString(region) {
		return errors.Wrap(snaprestore.ErrValidation, "malformed region code", j.KV("value", region))
	}

	return nil
}
