package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"transientbot/internal/config"
	"transientbot/internal/logging"
	"transientbot/internal/textutil"
	"transientbot/internal/transients"
)

// VotingReactions are the emoji seeded on every alert, in display order.
var VotingReactions = []string{"milky_way", "fire", "star", "wastebasket"}

// Message is one transient alert.
type Message struct {
	Transient transients.Transient
	// ImagePath is the composed thumbnail; empty when no survey had data.
	ImagePath string
	// Surveys lists the surveys shown in the thumbnail.
	Surveys []string
}

// Posted identifies a delivered alert.
type Posted struct {
	Channel     string
	TS          string
	ImageShared bool
}

// Service defines the notification surface used by the monitor and vote
// collector.
type Service interface {
	PostTransient(ctx context.Context, msg Message) (Posted, error)
	AddVotingReactions(ctx context.Context, posted Posted) error
	MessageReactions(ctx context.Context, posted Posted) (map[string]int, error)
	TestNotification(ctx context.Context) error
}

// NewService builds a Slack-backed service when a bot token and channel are
// configured; otherwise a noop implementation is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if !cfg.SlackEnabled() {
		return noopService{}
	}

	timeout := time.Duration(cfg.Slack.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}
	if cfg.Slack.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.Slack.APIURL))
	}
	return &slackService{
		api:     slack.New(cfg.Slack.BotToken, opts...),
		channel: cfg.Slack.ChannelID,
		logger:  logging.NewComponentLogger(logger, "slack"),
	}
}

type slackService struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger

	mu      sync.Mutex
	botUser string
}

func (s *slackService) PostTransient(ctx context.Context, msg Message) (Posted, error) {
	id := msg.Transient.ID
	channel, ts, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText("New transient detected: "+id, false),
		slack.MsgOptionBlocks(Blocks(msg)...),
	)
	if err != nil {
		return Posted{}, fmt.Errorf("post transient %s: %w", id, err)
	}
	posted := Posted{Channel: channel, TS: ts}
	if posted.Channel == "" {
		posted.Channel = s.channel
	}

	if msg.ImagePath != "" {
		if err := s.uploadImage(ctx, posted, msg); err != nil {
			logging.WarnWithContext(s.logger, "thumbnail upload failed; alert posted without image", "thumbnail_upload_failed",
				logging.String(logging.FieldTransientID, id),
				logging.String("path", msg.ImagePath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the bot has files:write scope"),
				logging.String(logging.FieldImpact, "alert has no thumbnail"),
			)
		} else {
			posted.ImageShared = true
		}
	}
	return posted, nil
}

func (s *slackService) uploadImage(ctx context.Context, posted Posted, msg Message) error {
	info, err := os.Stat(msg.ImagePath)
	if err != nil {
		return fmt.Errorf("stat thumbnail: %w", err)
	}
	title := msg.Transient.ID
	if len(msg.Surveys) > 0 {
		title = strings.Join(msg.Surveys, " + ") + " - " + title
	}
	_, err = s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:         posted.Channel,
		File:            msg.ImagePath,
		FileSize:        int(info.Size()),
		Filename:        filepath.Base(msg.ImagePath),
		Title:           title,
		ThreadTimestamp: posted.TS,
	})
	if err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}
	return nil
}

func (s *slackService) AddVotingReactions(ctx context.Context, posted Posted) error {
	ref := slack.NewRefToMessage(posted.Channel, posted.TS)
	var errs []error
	for _, name := range VotingReactions {
		if err := s.api.AddReactionContext(ctx, name, ref); err != nil {
			if strings.Contains(err.Error(), "already_reacted") {
				continue
			}
			errs = append(errs, fmt.Errorf("add reaction %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MessageReactions returns reaction counts on the posted message, not
// counting the bot's own seeded reactions.
func (s *slackService) MessageReactions(ctx context.Context, posted Posted) (map[string]int, error) {
	bot, err := s.botUserID(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: posted.Channel,
		Latest:    posted.TS,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", posted.TS, err)
	}
	counts := make(map[string]int)
	for _, m := range history.Messages {
		if m.Timestamp != posted.TS {
			continue
		}
		for _, r := range m.Reactions {
			count := r.Count
			for _, user := range r.Users {
				if user == bot {
					count--
					break
				}
			}
			if count > 0 {
				counts[r.Name] = count
			}
		}
	}
	return counts, nil
}

func (s *slackService) botUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.botUser != "" {
		return s.botUser, nil
	}
	resp, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test: %w", err)
	}
	s.botUser = resp.UserID
	return s.botUser, nil
}

func (s *slackService) TestNotification(ctx context.Context) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(":test_tube: transientbot notification test", false))
	if err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}
	return nil
}

// Blocks renders the Block Kit layout for msg.
func Blocks(msg Message) []slack.Block {
	t := msg.Transient
	field := func(label, value string) *slack.TextBlockObject {
		return slack.NewTextBlockObject(slack.MarkdownType, "*"+label+":*\n"+value, false, false)
	}
	text := func(value string) *slack.TextBlockObject {
		return slack.NewTextBlockObject(slack.MarkdownType, value, false, false)
	}

	coords := "unknown"
	if t.HasCoordinates && t.Coordinates.Valid() {
		ra, dec := t.Coordinates.Sexagesimal()
		coords = fmt.Sprintf("RA: %s\nDec: %s", ra, dec)
	}
	detected := "unknown"
	if !t.Time.IsZero() {
		detected = t.Time.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "New Transient: "+t.ID, false, false)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			field("Coordinates", coords),
			field("Detection Time", detected),
		}, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			field("Test Statistic", formatNumber(t.TestStatistic, "%.1f")),
			field("Field", orDefault(t.Field, "unknown")),
		}, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			field("Peak Flux", formatNumber(t.PeakFluxMJy, "%.2f mJy")),
			field("Status", orDefault(t.Status, "none")),
		}, nil),
	}
	if t.HasFWHM() {
		blocks = append(blocks, slack.NewSectionBlock(text(fmt.Sprintf("*Duration (FWHM):* %.2f days", t.FWHMDays)), nil, nil))
	}
	imageStatus := textutil.Ternary(msg.ImagePath != "",
		"*Imagery:* "+strings.Join(msg.Surveys, ", "),
		":camera: *Imagery:* No data available for this location")
	blocks = append(blocks,
		slack.NewSectionBlock(text(imageStatus), nil, nil),
		slack.NewDividerBlock(),
	)
	return blocks
}

func formatNumber(v float64, format string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf(format, v)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

type noopService struct{}

func (noopService) PostTransient(context.Context, Message) (Posted, error)           { return Posted{}, nil }
func (noopService) AddVotingReactions(context.Context, Posted) error                 { return nil }
func (noopService) MessageReactions(context.Context, Posted) (map[string]int, error) { return map[string]int{}, nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
