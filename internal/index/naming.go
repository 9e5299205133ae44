package index

import (
	"strings"
	"unicode"
)

// EntitiesAlias returns the read alias every query runs against.
func EntitiesAlias(prefix string) string {
	return prefix + "-entities"
}

// AuditLogIndex returns the name of the audit-log index.
func AuditLogIndex(prefix string) string {
	return prefix + "-entities-audit-log"
}

// DatasetPattern returns the wildcard matching every versioned index of a
// dataset, regardless of software prefix or version.
func DatasetPattern(prefix, dataset string) string {
	return prefix + "-entities-" + dataset + "-*"
}

// VersionedIndex computes the concrete index name for one dataset version:
// {prefix}-entities-{dataset}-{software}{version}.
func VersionedIndex(prefix, dataset, software, version string) string {
	return prefix + "-entities-" + dataset + "-" + software + SanitizeVersion(version)
}

// DatasetVersion extracts the sanitized version from a versioned index name,
// or "" when the name does not belong to the dataset and software prefix.
func DatasetVersion(name, prefix, dataset, software string) string {
	head := prefix + "-entities-" + dataset + "-" + software
	if !strings.HasPrefix(name, head) {
		return ""
	}
	return strings.TrimPrefix(name, head)
}

// SanitizeVersion lowercases a version string and replaces anything the
// backend would reject in an index name with dashes. Version comparisons run
// on sanitized forms so they line up with what index names encode.
func SanitizeVersion(version string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(version) {
		if unicode.IsLower(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
