package votes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/slack-go/slack"

	"transientbot/internal/config"
	"transientbot/internal/logging"
)

const defaultReconnectDelay = 5 * time.Second

// ErrNoAppToken is returned when Socket Mode is requested without an app token.
var ErrNoAppToken = errors.New("slack app token (xapp-) is required for live vote tracking")

// Listener follows reaction events over Slack Socket Mode and refreshes the
// tally of any tracked alert that changes.
type Listener struct {
	api            *slack.Client
	collector      *Collector
	dialer         *websocket.Dialer
	logger         *slog.Logger
	reconnectDelay time.Duration
}

// NewListener builds a Socket Mode listener from the slack section.
func NewListener(cfg config.Slack, collector *Collector, logger *slog.Logger) (*Listener, error) {
	if cfg.AppToken == "" {
		return nil, ErrNoAppToken
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: timeout}),
		slack.OptionAppLevelToken(cfg.AppToken),
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Listener{
		api:            slack.New(cfg.BotToken, opts...),
		collector:      collector,
		dialer:         websocket.DefaultDialer,
		logger:         logging.NewComponentLogger(logger, "votes-listener"),
		reconnectDelay: defaultReconnectDelay,
	}, nil
}

// Start processes events until ctx is cancelled, reconnecting after errors
// and whenever Slack asks the client to disconnect.
func (l *Listener) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(l.logger, "socket mode connection lost; reconnecting", "socket_mode_reconnect",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the app token has connections:write scope"),
				logging.String(logging.FieldImpact, "live vote updates paused until reconnect"),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.reconnectDelay):
			}
		}
	}
}

type envelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Reason     string          `json:"reason"`
	Payload    json.RawMessage `json:"payload"`
}

type eventsPayload struct {
	Event reactionEvent `json:"event"`
}

type reactionEvent struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Reaction string `json:"reaction"`
	Item     struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"item"`
}

func (l *Listener) session(ctx context.Context) error {
	_, wsURL, err := l.api.StartSocketModeContext(ctx)
	if err != nil {
		return fmt.Errorf("open socket mode connection: %w", err)
	}

	conn, _, err := l.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket mode: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	l.logger.Info("socket mode connected", logging.String(logging.FieldEventType, "socket_mode_connected"))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			l.logger.Debug("skipping unparseable frame", logging.Error(err))
			continue
		}
		if env.EnvelopeID != "" {
			ack, _ := json.Marshal(map[string]string{"envelope_id": env.EnvelopeID})
			if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
		}

		switch env.Type {
		case "hello":
			continue
		case "disconnect":
			l.logger.Info("socket mode disconnect requested", logging.String("reason", env.Reason))
			return nil
		case "events_api":
			l.handleEvent(ctx, env.Payload)
		}
	}
}

func (l *Listener) handleEvent(ctx context.Context, payload json.RawMessage) {
	var body eventsPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		l.logger.Debug("skipping unparseable event", logging.Error(err))
		return
	}
	ev := body.Event
	if ev.Type != "reaction_added" && ev.Type != "reaction_removed" {
		return
	}
	if _, ok := ReactionCategory[ev.Reaction]; !ok || ev.Item.Type != "message" {
		return
	}

	id, ok, err := l.collector.Resolve(ctx, ev.Item.Channel, ev.Item.TS)
	if err != nil {
		logging.WarnWithContext(l.logger, "resolve reacted message failed", "vote_resolve_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "reaction ignored until next vote sync"),
		)
		return
	}
	if !ok {
		return
	}
	if _, err := l.collector.Refresh(ctx, id, ev.Item.Channel, ev.Item.TS); err != nil {
		logging.WarnWithContext(l.logger, "vote refresh failed", "vote_refresh_failed",
			logging.String(logging.FieldTransientID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "reaction ignored until next vote sync"),
		)
		return
	}
	l.logger.Info("vote recorded",
		logging.String(logging.FieldTransientID, id),
		logging.String("reaction", ev.Reaction),
		logging.String(logging.FieldEventType, ev.Type),
	)
}
