package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/K3das/hark/asr"
	"github.com/K3das/hark/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const postTimeout = time.Second * 10

// postContext keeps ctx's log fields but not its cancellation, so a transcript
// produced just before shutdown is still posted.
func postContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(utils.DetachedLogContext(ctx), postTimeout)
}

func (b *DiscordBot) transcriptContext(t asr.Transcript) MessageContext {
	candidates := t.Candidates
	if candidates == nil {
		candidates = []string{}
	}

	return MessageContext{
		Transcript: &MessageContextTranscript{
			Text:           t.Text(),
			Candidates:     candidates,
			Tag:            t.Tag,
			Sequence:       t.Sequence,
			AudioDuration:  t.AudioDuration.Seconds(),
			ProcessingTime: t.ProcessingTime.Seconds(),
			Controls:       b.controls(ComponentSourceTranscript),
		},
	}
}

// PostTranscript sends t to the transcript channel.
func (b *DiscordBot) PostTranscript(ctx context.Context, t asr.Transcript) error {
	if b.channelID == "" {
		return nil
	}

	output, err := b.executeMessageTemplate(ctx, "transcript", b.transcriptContext(t))
	if err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}

	_, err = b.discord.ChannelMessageSendComplex(b.channelID, &discordgo.MessageSend{
		Content:         output.Content,
		Components:      output.Components,
		Embeds:          output.Embeds,
		AllowedMentions: DefaultAllowedMentions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	return nil
}

// HandleTranscript posts t, logging instead of returning errors so it can be
// used as a pipeline handler.
func (b *DiscordBot) HandleTranscript(ctx context.Context, t asr.Transcript) {
	log := utils.GetLogFromContext(ctx, b.log)

	ctx, cancel := postContext(ctx)
	defer cancel()

	err := b.PostTranscript(ctx, t)
	if err != nil {
		log.Error("failed to post transcript", zap.Error(err))
	}
}
