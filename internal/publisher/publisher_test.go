package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/image-publisher/internal/registry"
)

const testSHA = "0123456789abcdef0123456789abcdef01234567"

// mockDockerAPI serves canned daemon streams
type mockDockerAPI struct {
	buildOptions types.ImageBuildOptions
	buildStream  string
	buildErr     error
	buildCalls   int

	pushStreams map[string]string
	pushErrs    map[string]error
	pushed      []string
	pushAuth    []string
}

func (m *mockDockerAPI) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	m.buildCalls++
	m.buildOptions = options
	_, _ = io.Copy(io.Discard, buildContext)
	if m.buildErr != nil {
		return types.ImageBuildResponse{}, m.buildErr
	}
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(m.buildStream))}, nil
}

func (m *mockDockerAPI) ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error) {
	m.pushed = append(m.pushed, ref)
	m.pushAuth = append(m.pushAuth, options.RegistryAuth)
	if err := m.pushErrs[ref]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(m.pushStreams[ref])), nil
}

// mockVerifier returns fixed digests
type mockVerifier struct {
	digests map[string]string
	err     error
}

func (m *mockVerifier) Verify(ctx context.Context, tags []string, session *registry.Session) (map[string]string, error) {
	return m.digests, m.err
}

func successfulBuildStream() string {
	return `{"stream":"Step 1/1 : FROM scratch\n"}
{"aux":{"ID":"sha256:imageid"}}
{"stream":"Successfully built imageid\n"}
`
}

func pushStream(tag, digest string) string {
	return fmt.Sprintf(`{"status":"Pushing","id":"layer1"}
{"status":"%s: digest: %s size: 528"}
{"aux":{"Tag":"%s","Digest":"%s","Size":528}}
`, tag, digest, tag, digest)
}

func newWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0644))
	return dir
}

func newRequest(dir string) *PublishRequest {
	return &PublishRequest{
		ContextDir: dir,
		Registry:   "ghcr.io",
		Repository: "owner/myrepo",
		SHA:        testSHA,
		RefTag:     "main",
		SourceURL:  "https://github.com/Owner/MyRepo.git",
		Push:       true,
		Session:    &registry.Session{Host: "ghcr.io", EncodedAuth: "encoded-auth"},
	}
}

func TestTags(t *testing.T) {
	tags, err := Tags("https://ghcr.io", "owner/myrepo", testSHA)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ghcr.io/owner/myrepo:latest",
		"ghcr.io/owner/myrepo:" + testSHA,
	}, tags)
}

func TestTags_InvalidReference(t *testing.T) {
	_, err := Tags("ghcr.io", "Owner/MyRepo", testSHA)
	require.Error(t, err)

	var refErr ErrInvalidReference
	assert.True(t, errors.As(err, &refErr))
}

func TestPublish_PushesBothTags(t *testing.T) {
	latest := "ghcr.io/owner/myrepo:latest"
	commit := "ghcr.io/owner/myrepo:" + testSHA
	api := &mockDockerAPI{
		buildStream: successfulBuildStream(),
		pushStreams: map[string]string{
			latest: pushStream("latest", "sha256:abc"),
			commit: pushStream(testSHA, "sha256:abc"),
		},
	}

	result, err := NewDockerPublisher(api).Publish(context.Background(), newRequest(newWorkspace(t)))
	require.NoError(t, err)

	assert.Equal(t, 1, api.buildCalls)
	assert.Equal(t, []string{latest, commit}, api.buildOptions.Tags)
	assert.Equal(t, DefaultDockerfile, api.buildOptions.Dockerfile)
	assert.Equal(t, testSHA, api.buildOptions.Labels[LabelRevision])
	assert.Equal(t, "main", api.buildOptions.Labels[LabelRefName])
	assert.Equal(t, "https://github.com/Owner/MyRepo.git", api.buildOptions.Labels[LabelSource])

	assert.Equal(t, []string{latest, commit}, api.pushed)
	assert.Equal(t, []string{"encoded-auth", "encoded-auth"}, api.pushAuth)

	assert.Equal(t, "sha256:imageid", result.ImageID)
	require.Len(t, result.Pushed, 2)
	assert.Equal(t, result.Pushed[0].Digest, result.Pushed[1].Digest)
	assert.Contains(t, result.BuildLog, "Successfully built")
}

func TestPublish_BuildFailureSkipsPush(t *testing.T) {
	api := &mockDockerAPI{
		buildStream: `{"stream":"Step 1/2 : FROM nothing\n"}
{"errorDetail":{"message":"pull access denied"},"error":"pull access denied"}
`,
	}

	result, err := NewDockerPublisher(api).Publish(context.Background(), newRequest(newWorkspace(t)))
	require.Error(t, err)

	var buildErr ErrBuildFailed
	require.True(t, errors.As(err, &buildErr))
	assert.Contains(t, err.Error(), "pull access denied")
	assert.Empty(t, api.pushed)
	assert.Contains(t, result.BuildLog, "FROM nothing")
}

func TestPublish_PartialPushIsNotRolledBack(t *testing.T) {
	latest := "ghcr.io/owner/myrepo:latest"
	commit := "ghcr.io/owner/myrepo:" + testSHA
	api := &mockDockerAPI{
		buildStream: successfulBuildStream(),
		pushStreams: map[string]string{
			latest: pushStream("latest", "sha256:abc"),
			commit: `{"errorDetail":{"message":"denied: quota exceeded"},"error":"denied: quota exceeded"}` + "\n",
		},
	}

	result, err := NewDockerPublisher(api).Publish(context.Background(), newRequest(newWorkspace(t)))
	require.Error(t, err)

	var pushErr ErrPushFailed
	require.True(t, errors.As(err, &pushErr))
	assert.Equal(t, commit, pushErr.ImageTag)
	assert.Equal(t, []string{latest}, result.PushedTags())
}

func TestPublish_InvalidReferenceSkipsBuild(t *testing.T) {
	api := &mockDockerAPI{}
	req := newRequest(newWorkspace(t))
	req.Repository = "Owner/MyRepo"

	_, err := NewDockerPublisher(api).Publish(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, api.buildCalls)
}

func TestPublish_NoPush(t *testing.T) {
	api := &mockDockerAPI{buildStream: successfulBuildStream()}
	req := newRequest(newWorkspace(t))
	req.Push = false

	result, err := NewDockerPublisher(api).Publish(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, api.pushed)
	assert.Empty(t, result.Pushed)
}

func TestPublish_MissingSession(t *testing.T) {
	api := &mockDockerAPI{buildStream: successfulBuildStream()}
	req := newRequest(newWorkspace(t))
	req.Session = nil

	_, err := NewDockerPublisher(api).Publish(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, api.pushed)
}

func TestPublish_Verify(t *testing.T) {
	latest := "ghcr.io/owner/myrepo:latest"
	commit := "ghcr.io/owner/myrepo:" + testSHA

	newAPI := func() *mockDockerAPI {
		return &mockDockerAPI{
			buildStream: successfulBuildStream(),
			pushStreams: map[string]string{
				latest: pushStream("latest", "sha256:abc"),
				commit: pushStream(testSHA, "sha256:abc"),
			},
		}
	}

	t.Run("same digest", func(t *testing.T) {
		verifier := &mockVerifier{digests: map[string]string{latest: "sha256:abc", commit: "sha256:abc"}}
		result, err := NewDockerPublisher(newAPI(), WithVerifier(verifier)).
			Publish(context.Background(), newRequest(newWorkspace(t)))
		require.NoError(t, err)
		assert.True(t, result.Verified)
	})

	t.Run("digest mismatch", func(t *testing.T) {
		verifier := &mockVerifier{digests: map[string]string{latest: "sha256:abc", commit: "sha256:def"}}
		_, err := NewDockerPublisher(newAPI(), WithVerifier(verifier)).
			Publish(context.Background(), newRequest(newWorkspace(t)))
		assert.ErrorIs(t, err, ErrDigestMismatch)
	})

	t.Run("missing tag", func(t *testing.T) {
		verifier := &mockVerifier{digests: map[string]string{latest: "sha256:abc"}}
		_, err := NewDockerPublisher(newAPI(), WithVerifier(verifier)).
			Publish(context.Background(), newRequest(newWorkspace(t)))
		assert.ErrorIs(t, err, ErrDigestMismatch)
	})
}

func TestReadDockerignore(t *testing.T) {
	dir := t.TempDir()

	patterns, err := readDockerignore(dir)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dockerignore"), []byte("# comment\n.git\nnode_modules\n\n*.log\n"), 0644))
	patterns, err = readDockerignore(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{".git", "node_modules", "*.log"}, patterns)
}
