package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/K3das/hark/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *DiscordBot) handleInteractionCreate(s *discordgo.Session, e *discordgo.InteractionCreate) {
	ctx, log := utils.LogContextWith(context.Background(), b.log, zap.String("initiating_interaction", fmt.Sprintf("/%s/%s/%s", e.GuildID, e.ChannelID, e.ID)))

	defer utils.PanicRecovery(log)

	switch e.Type {
	case discordgo.InteractionApplicationCommand:
		data := e.ApplicationCommandData()
		err := b.handleCommandInteraction(ctx, e, data)
		if err != nil {
			log.Error("error handling command interaction", zap.Error(err))
		}
	case discordgo.InteractionMessageComponent:
		data := e.MessageComponentData()
		err := b.handleComponentInteraction(ctx, e, data)
		if err != nil {
			log.Error("error handling component interaction", zap.Error(err))
		}
	}
}

// respondError renders an error template and sends it as an ephemeral reply.
func (b *DiscordBot) respondError(ctx context.Context, e *discordgo.InteractionCreate, messageName string, cause error) {
	log := utils.GetLogFromContext(ctx, b.log)

	var discordErr DiscordExecutionError
	errorMessage := "Unknown error occurred."
	if errors.As(cause, &discordErr) && discordErr.Message != "" {
		errorMessage = discordErr.Message
	}

	if !discordErr.UserError {
		log.Error("failed to handle interaction", zap.Error(cause))
	}

	data := MessageContext{}
	switch messageName {
	case "command_error":
		data.CommandError = &MessageContextError{Message: errorMessage}
	default:
		data.InteractionError = &MessageContextError{Message: errorMessage}
	}

	output, err := b.executeMessageTemplate(ctx, messageName, data)
	if err != nil {
		log.Error("failed to render error message", zap.Error(err))
		return
	}

	err = b.respond(e, output)
	if err != nil {
		log.Error("failed to send response", zap.Error(err))
	}
}

// respond replies to e with an ephemeral message.
func (b *DiscordBot) respond(e *discordgo.InteractionCreate, output *MessageOutput) error {
	return b.discord.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:           discordgo.MessageFlagsEphemeral,
			Content:         output.Content,
			Components:      output.Components,
			Embeds:          output.Embeds,
			AllowedMentions: DefaultAllowedMentions,
		},
	})
}

func getInteractionUser(e *discordgo.InteractionCreate) (*discordgo.User, error) {
	var discordUser *discordgo.User
	if e.Member != nil && e.Member.User != nil {
		discordUser = e.Member.User
	} else if e.User != nil {
		discordUser = e.User
	} else {
		return nil, fmt.Errorf("no user found in interaction")
	}

	return discordUser, nil
}
