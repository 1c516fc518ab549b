package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type NATSConfig struct {
	URL           string
	StreamName    string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // how long history is kept
	MaxMsgs       int64
	Replicas      int
	// window in which a republished record id is dropped as a duplicate
	DuplicateWindow time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		StreamName:      "POKER_SESSIONS",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          72 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 10 * time.Minute,
	}
}

// NATSArchiver publishes history to a JetStream stream
type NATSArchiver struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

func NewNATSArchiver(ctx context.Context, cfg NATSConfig) (*NATSArchiver, error) {
	opts := []nats.Option{
		nats.Name("showdown-archive"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	a := &NATSArchiver{nc: nc, js: js, config: cfg}
	if err := a.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return a, nil
}

func (a *NATSArchiver) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        a.config.StreamName,
		Description: "Reasoning and hand history of poker sessions",
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      a.config.MaxAge,
		MaxMsgs:     a.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    a.config.Replicas,
		Duplicates:  a.config.DuplicateWindow,
	}
}

func (a *NATSArchiver) ensureStream(ctx context.Context) error {
	sc := a.streamConfig()
	stream, err := a.js.Stream(ctx, sc.Name)
	if err != nil {
		if _, err = a.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !streamConfigEqual(info.Config, sc) {
		if _, err = a.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
	}
	return nil
}

func (a *NATSArchiver) ArchiveReasoning(ctx context.Context, rec ReasoningRecord) error {
	return a.publish(ctx, ReasoningSubject(rec.SessionID), "reasoning", rec.ID, rec.SessionID, rec)
}

func (a *NATSArchiver) ArchiveHand(ctx context.Context, rec HandRecord) error {
	return a.publish(ctx, HandSubject(rec.SessionID), "hand", rec.ID, rec.SessionID, rec)
}

func (a *NATSArchiver) publish(ctx context.Context, subject, kind, id, sessionID string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", kind, err)
	}

	ack, err := a.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Record-Type": []string{kind},
			"Session-ID":  []string{sessionID},
			"Record-ID":   []string{id},
		},
	},
		jetstream.WithMsgID(id),
		jetstream.WithExpectStream(a.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("record_id", id).
		Uint64("sequence", ack.Sequence).
		Msg("archived to JetStream")
	return nil
}

// Connected reports whether the NATS connection is up
func (a *NATSArchiver) Connected() bool {
	return a.nc != nil && a.nc.IsConnected()
}

func (a *NATSArchiver) Close() error {
	if a.nc != nil {
		return a.nc.Drain()
	}
	return nil
}

func streamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
