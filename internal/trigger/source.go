package trigger

import (
	"fmt"

	"github.com/google/go-github/v75/github"
)

// Runtime variable names read by FromEnvironment
const (
	EnvEventName  = "GITHUB_EVENT_NAME"
	EnvRef        = "GITHUB_REF"
	EnvRepository = "GITHUB_REPOSITORY"
	EnvSHA        = "GITHUB_SHA"
	EnvActor      = "GITHUB_ACTOR"
	EnvToken      = "GITHUB_TOKEN"
	EnvServerURL  = "GITHUB_SERVER_URL"
)

// LookupFunc resolves a variable, e.g. os.LookupEnv
type LookupFunc func(key string) (string, bool)

// FromEnvironment builds an event from the hosting runtime's variables
func FromEnvironment(lookup LookupFunc) *Event {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	e := &Event{
		Name:       get(EnvEventName),
		Ref:        get(EnvRef),
		Repository: get(EnvRepository),
		SHA:        get(EnvSHA),
		Actor:      get(EnvActor),
		Token:      get(EnvToken),
	}
	if e.Repository != "" {
		e.CloneURL = CloneURLFor(get(EnvServerURL), e.Repository)
	}
	return e
}

// ParsePushPayload decodes a GitHub webhook delivery. Only push deliveries are
// accepted.
func ParsePushPayload(eventType string, body []byte) (*Event, error) {
	if eventType != EventPush {
		return nil, fmt.Errorf("unsupported event type %q", eventType)
	}

	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse push payload: %w", err)
	}

	push, ok := payload.(*github.PushEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}

	e := &Event{
		Name:       EventPush,
		Ref:        push.GetRef(),
		SHA:        push.GetAfter(),
		Repository: push.GetRepo().GetFullName(),
		CloneURL:   push.GetRepo().GetCloneURL(),
		Actor:      push.GetSender().GetLogin(),
	}
	if e.CloneURL == "" && e.Repository != "" {
		e.CloneURL = CloneURLFor("", e.Repository)
	}
	return e, nil
}
