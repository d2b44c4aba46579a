// Package policy holds the allow-lists the sign-in gate evaluates against.
//
// Both lists are derived once from configuration at startup and never change
// for the lifetime of the process. Values are compared after lower-casing and
// trimming, so configuration may use any case or spacing.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// AllowList is an immutable set of normalized identifiers.
// The zero value is an empty list.
type AllowList struct {
	items   map[string]struct{}
	sorted  []string
	version string
}

// Normalize lower-cases and trims an identifier the same way list entries are stored.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ParseAllowList builds a list from a comma separated configuration value.
// Empty entries are skipped.
func ParseAllowList(raw string) AllowList {
	return NewAllowList(strings.Split(raw, ",")...)
}

// NewAllowList builds a list from individual values.
func NewAllowList(values ...string) AllowList {
	items := make(map[string]struct{}, len(values))

	for _, v := range values {
		if n := Normalize(v); n != "" {
			items[n] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(items))
	for k := range items {
		sorted = append(sorted, k)
	}

	slices.Sort(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))

	return AllowList{
		items:   items,
		sorted:  sorted,
		version: hex.EncodeToString(sum[:8]),
	}
}

// Contains reports whether the normalized value is in the list.
// An empty value is never contained.
func (a AllowList) Contains(value string) bool {
	n := Normalize(value)
	if n == "" {
		return false
	}

	_, ok := a.items[n]

	return ok
}

// Empty reports whether the list has no entries.
func (a AllowList) Empty() bool {
	return len(a.items) == 0
}

// Len returns the number of distinct entries.
func (a AllowList) Len() int {
	return len(a.items)
}

// Items returns a sorted copy of the entries.
func (a AllowList) Items() []string {
	return slices.Clone(a.sorted)
}

// Version identifies the list content. Two lists with the same entries share a version.
func (a AllowList) Version() string {
	if a.version == "" {
		return NewAllowList().version
	}

	return a.version
}

// Policy is the process wide authorization configuration.
type Policy struct {
	// AdminEmails grants the administrator capability by email or login identifier.
	AdminEmails AllowList
	// AllowedPrincipals lists directory object ids (groups, roles or users) permitted
	// to use the application. Empty disables the membership check.
	AllowedPrincipals AllowList
}

// New builds a Policy from the comma separated configuration values.
func New(adminEmails, allowedPrincipals string) Policy {
	return Policy{
		AdminEmails:       ParseAllowList(adminEmails),
		AllowedPrincipals: ParseAllowList(allowedPrincipals),
	}
}

// MembershipCheckEnabled reports whether directory membership must be resolved.
func (p Policy) MembershipCheckEnabled() bool {
	return !p.AllowedPrincipals.Empty()
}
