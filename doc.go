// Package main is the entry point of go-auth-gate, a sign-in gate for GitHub
// and Azure Active Directory. It grants an administrator flag from an email
// allow-list and admits Azure AD users only when the directory confirms their
// membership in an allowed group. Directory failures deny access.
package main
