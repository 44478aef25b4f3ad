// Package naming derives registry-safe image names from the values a push
// event carries.
package naming

import "strings"

// refTagSegment is the index of the ref segment used as the tag fragment
// (refs/heads/<branch>).
const refTagSegment = 2

// Names holds the values derived once per run
type Names struct {
	// Repository is the repository full name, case-folded. Registries reject
	// uppercase path segments.
	Repository string
	// Tag is the third slash-delimited segment of the ref, case-folded.
	Tag string
}

// Normalize derives the image repository path and tag fragment.
//
// A ref with fewer than three segments yields an empty Tag. No validation is
// performed and the empty value is passed through as-is; callers decide what
// to do with it.
func Normalize(repoFullName, ref string) Names {
	return Names{
		Repository: RepositoryPath(repoFullName),
		Tag:        RefTag(ref),
	}
}

// RepositoryPath lowercases a repository full name (owner/name)
func RepositoryPath(repoFullName string) string {
	return strings.ToLower(repoFullName)
}

// RefTag returns the lowercased third segment of ref, or "" if ref has fewer
// than three segments. Deeper refs (refs/heads/feature/x) keep only the third
// segment.
func RefTag(ref string) string {
	segments := strings.Split(ref, "/")
	if len(segments) <= refTagSegment {
		return ""
	}
	return strings.ToLower(segments[refTagSegment])
}

// HasTag reports whether the derivation produced a tag fragment
func (n Names) HasTag() bool {
	return n.Tag != ""
}
