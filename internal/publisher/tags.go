package publisher

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/alvesdmateus/image-publisher/internal/registry"
)

// Tags computes the fully-qualified tag set for a commit:
// <registry>/<repository>:latest and <registry>/<repository>:<sha>.
// Every reference is validated before anything is built.
func Tags(registryHost, repository, sha string) ([]string, error) {
	host := registry.NormalizeHost(registryHost)
	refs := []string{
		fmt.Sprintf("%s/%s:%s", host, repository, LatestTag),
		fmt.Sprintf("%s/%s:%s", host, repository, sha),
	}

	for _, ref := range refs {
		if _, err := name.NewTag(ref, name.StrictValidation); err != nil {
			return nil, ErrInvalidReference{Reference: ref, Err: err}
		}
	}
	return refs, nil
}
