package discord

import (
	"context"
	"fmt"

	"github.com/K3das/hark/store"
	"github.com/K3das/hark/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	CommandNameRecent = "recent"

	recentCountOption  = "count"
	DefaultRecentCount = 5
	MaxRecentCount     = 25
)

// TranscriptLog is where /recent reads saved transcripts from.
type TranscriptLog interface {
	RecentTranscripts(ctx context.Context, limit int) ([]store.StoredTranscript, error)
}

func WithTranscriptLog(transcriptLog TranscriptLog) DiscordBotOptionsExtraOptions {
	return func(b *DiscordBot) {
		b.transcriptLog = transcriptLog
	}
}

type MessageContextRecentTranscript struct {
	Text     string `json:"text"`
	Sequence uint64 `json:"sequence"`
	Tag      string `json:"tag"`
	// unix seconds
	CreatedAt int64 `json:"created_at"`
}

type MessageContextRecentTranscripts struct {
	Transcripts []MessageContextRecentTranscript `json:"transcripts"`
}

func recentCount(options []*discordgo.ApplicationCommandInteractionDataOption) int {
	for _, option := range options {
		if option.Name != recentCountOption || option.Type != discordgo.ApplicationCommandOptionInteger {
			continue
		}
		count := int(option.IntValue())
		if count < 1 {
			return 1
		}
		return min(count, MaxRecentCount)
	}
	return DefaultRecentCount
}

func (b *DiscordBot) recentTranscripts(ctx context.Context, count int) (*MessageContextRecentTranscripts, error) {
	if b.transcriptLog == nil {
		return nil, DiscordExecutionError{
			Message:   "Transcripts aren't being saved.",
			UserError: true,
		}
	}

	stored, err := b.transcriptLog.RecentTranscripts(ctx, count)
	if err != nil {
		return nil, DiscordExecutionError{
			Message: "Couldn't load transcripts.",
			Err:     fmt.Errorf("loading recent transcripts: %w", err),
		}
	}

	recent := &MessageContextRecentTranscripts{
		Transcripts: make([]MessageContextRecentTranscript, 0, len(stored)),
	}
	for _, st := range stored {
		recent.Transcripts = append(recent.Transcripts, MessageContextRecentTranscript{
			Text:      st.Text(),
			Sequence:  st.Sequence,
			Tag:       st.Tag,
			CreatedAt: st.CreatedAt.Unix(),
		})
	}

	return recent, nil
}

func (b *DiscordBot) respondRecent(ctx context.Context, e *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if !b.isGuildInScope(e.GuildID) {
		return DiscordExecutionError{
			Message:   "This server can't read transcripts.",
			UserError: true,
		}
	}

	count := recentCount(data.Options)
	ctx = utils.LogContext(ctx, zap.Int("count", count))

	recent, err := b.recentTranscripts(ctx, count)
	if err != nil {
		return err
	}

	output, err := b.executeMessageTemplate(ctx, "recent_transcripts", MessageContext{
		RecentTranscripts: recent,
	})
	if err != nil {
		return fmt.Errorf("rendering message: %w", err)
	}

	err = b.respond(e, output)
	if err != nil {
		return fmt.Errorf("responding: %w", err)
	}

	return nil
}
