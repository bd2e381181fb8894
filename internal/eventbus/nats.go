// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

//go:build nats

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
)

const natsSubjectPrefix = "visits."

// NATSAvailable reports whether this binary was built with NATS support.
const NATSAvailable = true

// newNATS connects to NATS JetStream, starting an embedded server first when
// configured, and ensures the visits stream exists.
func newNATS(ctx context.Context, cfg config.EventsConfig) (*Bus, error) {
	logger := logging.NewWatermillAdapter()
	var closers []func() error

	url := cfg.NATSURL
	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		url = srv.ClientURL()
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if err := ensureStream(ctx, url, cfg.StreamName); err != nil {
		cleanup()
		return nil, err
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	// Every instance needs every visit for its own dashboards, so the
	// consumer is ephemeral with no queue group.
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:            url,
		NatsOptions:    natsOpts,
		Unmarshaler:    &wmNats.NATSMarshaler{},
		AckWaitTimeout: 30 * time.Second,
		CloseTimeout:   10 * time.Second,
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.StreamName),
				natsgo.DeliverNew(),
				natsgo.AckExplicit(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		cleanup()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	logging.Info().Str("url", url).Str("stream", cfg.StreamName).Bool("embedded", cfg.EmbeddedServer).
		Msg("NATS event bus connected")

	return &Bus{
		transport:      TransportNATS,
		pub:            pub,
		sub:            sub,
		cb:             newBreaker("eventbus_nats"),
		logger:         logger,
		publishTopic:   natsSubject,
		subscribeTopic: natsSubjectPrefix + ">",
		closers:        closers,
	}, nil
}

// ensureStream creates or updates the JetStream stream holding visits.
func ensureStream(ctx context.Context, url, name string) error {
	nc, err := natsgo.Connect(url, natsgo.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{natsSubjectPrefix + ">"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     24 * time.Hour,
		Duplicates: 2 * time.Minute,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	}

	if _, err := js.Stream(ctx, name); err == nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", name, err)
		}
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("check stream %s: %w", name, err)
	}

	if _, err := js.CreateStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// natsSubject maps a tracker ID to a subject token. Characters NATS treats
// specially are replaced so any tracker ID yields one valid token.
func natsSubject(trackerID string) string {
	token := []byte(trackerID)
	for i, c := range token {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			token[i] = '_'
		}
	}
	if len(token) == 0 {
		token = []byte("_")
	}
	return natsSubjectPrefix + string(token)
}
