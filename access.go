package stowage

import (
	"slices"
	"strings"

	"github.com/kmerrin/stowage/pathname"
)

// NormalizeCategory converts a permission category to its canonical "/name/"
// form: "documents", "/documents" and "documents/" all become "/documents/".
func NormalizeCategory(category string) string {
	return "/" + strings.Trim(category, "/") + "/"
}

// NormalizePermissions returns a copy of a requested permission map with
// categories in canonical form and access lists sorted ascending and
// deduplicated. Backends apply it before persisting a session and rely on
// lookups against the canonical form afterwards.
func NormalizePermissions(permissions map[string][]string) map[string][]string {
	out := make(map[string][]string, len(permissions))
	for category, accesses := range permissions {
		a := slices.Clone(accesses)
		slices.Sort(a)
		out[NormalizeCategory(category)] = slices.Compact(a)
	}
	return out
}

// Permits evaluates the request-time access rule for a path against a
// session's permission map (categories in canonical form, as returned by
// Permissions). It implements the convention the HTTP layer relies on:
//
//   - a grant on the path's category decides reads and writes within it;
//   - a grant on category X additionally allows reads (including listings)
//     under the "public/X" mirror, but never writes there;
//   - documents under a "public/" category are readable by any caller, even
//     with no permissions at all — directories are not.
//
// An empty or nil permission map is valid input and still allows anonymous
// public document reads.
func Permits(permissions map[string][]string, access, path string) bool {
	category := pathname.Category(path)
	if category == "" {
		return false
	}

	if slices.Contains(permissions[NormalizeCategory(category)], access) {
		return true
	}

	base, public := strings.CutPrefix(category, "public/")
	if !public || access != AccessRead {
		return false
	}
	if !pathname.IsDir(path) {
		return true
	}
	return slices.Contains(permissions[NormalizeCategory(base)], AccessRead)
}
