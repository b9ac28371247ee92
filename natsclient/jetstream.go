package natsclient

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ukhas/habitat-sub001/errors"
)

// JetStream returns the JetStream context of the current connection
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// EnsureStream creates the named stream capturing subjects, or updates its
// subjects if it already exists
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	js, err := c.JetStream()
	if err != nil {
		return err
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "EnsureStream", fmt.Sprintf("create stream %s", name))
	}

	c.logger.Info("JetStream stream ready", "stream", name, "subjects", subjects)
	return nil
}

// PublishToStream publishes data to subject and waits for the stream to
// acknowledge it
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	js, err := c.JetStream()
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		if errors.Is(err, jetstream.ErrNoStreamResponse) {
			return errors.WrapInvalid(err, "Client", "PublishToStream",
				fmt.Sprintf("no stream captures %s", subject))
		}
		return errors.WrapTransient(err, "Client", "PublishToStream", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}
