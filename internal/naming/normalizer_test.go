package naming

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Example(t *testing.T) {
	names := Normalize("Owner/MyRepo", "refs/heads/Main")

	assert.Equal(t, "owner/myrepo", names.Repository)
	assert.Equal(t, "main", names.Tag)
	assert.True(t, names.HasTag())
}

func TestRepositoryPath_NoUppercase(t *testing.T) {
	inputs := []string{
		"Owner/MyRepo",
		"ALLCAPS/REPO",
		"MiXeD-Case_Org/Some.Repo",
		"already/lower",
		"Org123/Repo-With-Dashes",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got := RepositoryPath(in)
			for _, r := range got {
				assert.False(t, unicode.IsUpper(r), "unexpected uppercase rune %q in %q", r, got)
			}
			assert.True(t, strings.EqualFold(in, got))
		})
	}
}

func TestRefTag(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{name: "branch ref", ref: "refs/heads/main", want: "main"},
		{name: "uppercase segment", ref: "refs/heads/Release", want: "release"},
		{name: "generic three segments", ref: "a/b/C", want: "c"},
		{name: "tag ref", ref: "refs/tags/V1.2.0", want: "v1.2.0"},
		{name: "nested branch keeps third segment", ref: "refs/heads/feature/login", want: "feature"},
		{name: "two segments", ref: "heads/main", want: ""},
		{name: "single segment", ref: "main", want: ""},
		{name: "empty", ref: "", want: ""},
		{name: "empty third segment", ref: "refs/heads/", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefTag(tt.ref))
		})
	}
}

func TestNormalize_MalformedRefPassesThrough(t *testing.T) {
	names := Normalize("Owner/Repo", "main")

	assert.Equal(t, "owner/repo", names.Repository)
	assert.Empty(t, names.Tag)
	assert.False(t, names.HasTag())
}
