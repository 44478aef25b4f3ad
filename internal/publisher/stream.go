package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/rs/zerolog/log"
)

// buildAux is the aux payload the daemon emits with the built image ID
type buildAux struct {
	ID string `json:"ID"`
}

// pushAux is the aux payload the daemon emits after a tag is pushed
type pushAux struct {
	Tag    string `json:"Tag"`
	Digest string `json:"Digest"`
	Size   int64  `json:"Size"`
}

// readMessages decodes a daemon progress stream, calling fn for every message.
// A message carrying an error ends the stream with that error.
func readMessages(ctx context.Context, reader io.Reader, fn func(*jsonmessage.JSONMessage)) error {
	decoder := json.NewDecoder(reader)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode daemon output: %w", err)
		}

		if msg.Error != nil {
			return msg.Error
		}
		if msg.ErrorMessage != "" {
			return errors.New(msg.ErrorMessage)
		}

		fn(&msg)
	}
}

// streamBuildOutput collects build output and returns the built image ID
func streamBuildOutput(ctx context.Context, reader io.Reader, buildLog *strings.Builder) (string, error) {
	var imageID string

	err := readMessages(ctx, reader, func(msg *jsonmessage.JSONMessage) {
		if msg.Stream != "" {
			buildLog.WriteString(msg.Stream)
			log.Debug().Str("output", strings.TrimSpace(msg.Stream)).Msg("Build output")
		}
		if msg.Aux != nil {
			var aux buildAux
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				imageID = aux.ID
			}
		}
	})
	return imageID, err
}

// streamPushOutput follows a push and returns the pushed manifest details
func streamPushOutput(ctx context.Context, reader io.Reader) (*pushAux, error) {
	var result pushAux

	err := readMessages(ctx, reader, func(msg *jsonmessage.JSONMessage) {
		if msg.Status != "" {
			log.Debug().
				Str("status", msg.Status).
				Str("layer", msg.ID).
				Msg("Push progress")
		}
		if msg.Aux != nil {
			var aux pushAux
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.Digest != "" {
				result = aux
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
