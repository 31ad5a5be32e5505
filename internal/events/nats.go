package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultNatsPublishTimeout time.Duration = 5 * time.Second
	DefaultNatsMaxMessages    int64         = 1024
	DefaultNatsMaxSizeBytes   int64         = 1024 * 1024 * 128

	natsStreamName    = "hostplane"
	natsSubjectPrefix = "hostplane.approvals"
)

type Nats struct {
	Addr   string
	Client *nats.Conn

	options       []nats.Option
	streamContext nats.JetStreamContext
}

type NewNatsOpts struct {
	Addr     string
	Username string
	Password string
}

func NewNats(opts NewNatsOpts) (*Nats, error) {
	instance := &Nats{Addr: opts.Addr}
	if opts.Username != "" {
		instance.options = append(instance.options, nats.UserInfo(opts.Username, opts.Password))
	}
	if err := instance.connect(); err != nil {
		return nil, err
	}
	return instance, nil
}

func (n *Nats) connect() error {
	var err error
	n.Client, err = nats.Connect("nats://"+n.Addr, n.options...)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	if !n.Client.IsConnected() {
		return fmt.Errorf("failed to verify connection")
	}
	n.streamContext, err = n.Client.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get jetstream context: %w", err)
	}
	if err := n.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}
	return nil
}

func (n *Nats) ensureStream() error {
	if _, err := n.streamContext.StreamInfo(natsStreamName); err == nil {
		return nil
	}
	if _, err := n.streamContext.AddStream(&nats.StreamConfig{
		Name:     natsStreamName,
		Subjects: []string{natsSubjectPrefix + ".>"},
		MaxMsgs:  DefaultNatsMaxMessages,
		MaxBytes: DefaultNatsMaxSizeBytes,
		Replicas: 1,
	}); err != nil {
		return fmt.Errorf("failed to add stream[%s]: %w", natsStreamName, err)
	}
	return nil
}

func (n *Nats) PublishTransition(event TransitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for request[%s]: %w", event.RequestId, err)
	}
	subject := fmt.Sprintf("%s.%s", natsSubjectPrefix, strings.ToLower(string(event.ToState)))
	ctx, cancel := context.WithTimeout(context.Background(), DefaultNatsPublishTimeout)
	defer cancel()
	if _, err := n.streamContext.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (n *Nats) Close() error {
	if err := n.Client.Drain(); err != nil {
		return fmt.Errorf("failed to drain connection[%s]: %w", n.Client.ConnectedAddr(), err)
	}
	n.Client.Close()
	return nil
}

var _ Publisher = (*Nats)(nil)
