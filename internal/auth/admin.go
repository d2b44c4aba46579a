package auth

import "github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"

// IsAdmin reports whether the principal is an administrator according to the
// admin email allow-list. Both the email and the secondary login identifier are
// checked, since some providers fill the email field inconsistently for certain
// account types. Directory membership never grants admin.
func IsAdmin(p Principal, adminEmails policy.AllowList) bool {
	return adminEmails.Contains(p.Email) || adminEmails.Contains(p.SecondaryID)
}
