package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/showdown/go/clients/showdown_client"
	"github.com/mcdev12/showdown/go/internal/clientsync"
	"github.com/mcdev12/showdown/go/internal/gateway"
	"github.com/mcdev12/showdown/go/internal/protocol"
	"github.com/mcdev12/showdown/go/internal/session"
)

const keepaliveInterval = 20 * time.Second

type playOptions struct {
	name        string
	opponents   []string
	hands       int
	stack       int
	smallBlind  int
	bigBlind    int
	turnTimeout int
	seed        int64
	sessionID   string
	keep        bool
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Create a table and play it",
		Example: `  observer play --opponent Doyle=llama3:8b@0.7 --opponent Phil --hands 5
  observer play --session 6f1c...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd.Context(), root, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "", "your name at the table")
	flags.StringArrayVar(&opts.opponents, "opponent", nil, "opponent as NAME[=MODEL[@TEMPERATURE]], repeatable")
	flags.IntVar(&opts.hands, "hands", 0, "number of hands (server default if 0)")
	flags.IntVar(&opts.stack, "stack", 0, "starting stack")
	flags.IntVar(&opts.smallBlind, "small-blind", 0, "small blind")
	flags.IntVar(&opts.bigBlind, "big-blind", 0, "big blind")
	flags.IntVar(&opts.turnTimeout, "turn-timeout", 0, "seconds to act (server default if 0)")
	flags.Int64Var(&opts.seed, "seed", 0, "deck seed for a reproducible session")
	flags.StringVar(&opts.sessionID, "session", "", "attach to an existing session instead of creating one")
	flags.BoolVar(&opts.keep, "keep", false, "leave the session on the server when quitting early")
	return cmd
}

func (o *playOptions) request() (gateway.CreateSessionRequest, error) {
	req := gateway.CreateSessionRequest{
		HumanName:          o.name,
		StartingStack:      positive(o.stack),
		SmallBlind:         positive(o.smallBlind),
		BigBlind:           positive(o.bigBlind),
		NumHands:           positive(o.hands),
		TurnTimeoutSeconds: positive(o.turnTimeout),
		Seed:               o.seed,
	}
	for _, arg := range o.opponents {
		name, model, temperature, err := parseOpponent(arg)
		if err != nil {
			return req, err
		}
		req.Opponents = append(req.Opponents, session.Opponent{Name: name, Model: model, Temperature: temperature})
	}
	return req, nil
}

// positive leaves unset flags to the server defaults
func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func runPlay(ctx context.Context, root *rootOptions, opts *playOptions, in io.Reader, out io.Writer) error {
	client := root.client()

	sessionID := opts.sessionID
	wsPath := "/ws/" + sessionID
	created := false
	if sessionID == "" {
		req, err := opts.request()
		if err != nil {
			return err
		}
		resp, err := client.CreateSession(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		sessionID, wsPath, created = resp.SessionID, resp.WebsocketURL, true
		fmt.Fprintf(out, "created session %s\n", sessionID)
		for _, p := range resp.Players {
			fmt.Fprintf(out, "  seat %d: %s %s\n", p.Index, p.Name, p.Model)
		}
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, client.WebsocketURL(wsPath), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ws.Close()

	events := make(chan *protocol.Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			var ev protocol.Event
			if err := ws.ReadJSON(&ev); err != nil {
				readErr <- err
				return
			}
			events <- &ev
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	var state clientsync.State
	for {
		select {
		case <-ctx.Done():
			if created && !opts.keep {
				cleanup(client, sessionID)
			}
			return ctx.Err()

		case err := <-readErr:
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == gateway.CloseSessionNotFound {
				return fmt.Errorf("session %s not found", sessionID)
			}
			return fmt.Errorf("connection lost: %w", err)

		case ev := <-events:
			log.Debug().Str("type", string(ev.Type)).RawJSON("data", ev.Data).Msg("event")
			next, err := clientsync.Reduce(state, ev)
			if err != nil {
				log.Warn().Err(err).Str("type", string(ev.Type)).Msg("dropping event")
				continue
			}
			fmt.Fprint(out, describe(ev, state, next))
			state = next
			if ev.Type == protocol.EventSessionComplete {
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				// stdin closed, finish the session so the server sends the summary
				lines = nil
				if err := ws.WriteJSON(protocol.ClientMessage{Type: protocol.MessageEndSession}); err != nil {
					return err
				}
				continue
			}
			msg, err := parseCommand(line, state)
			switch {
			case errors.Is(err, errHelp):
				fmt.Fprint(out, helpText)
				continue
			case err != nil:
				fmt.Fprintf(out, "%v\n", err)
				continue
			}
			if err := ws.WriteJSON(msg); err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}

		case <-keepalive.C:
			if err := ws.WriteJSON(protocol.ClientMessage{Type: protocol.MessageKeepalive}); err != nil {
				return fmt.Errorf("failed to send keepalive: %w", err)
			}
		}
	}
}

func cleanup(client *showdown_client.ShowdownClient, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.DeleteSession(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
	}
}
