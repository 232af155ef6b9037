package discord

import (
	"context"

	"github.com/K3das/hark/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *DiscordBot) handleComponentInteraction(ctx context.Context, e *discordgo.InteractionCreate, data discordgo.MessageComponentInteractionData) error {
	log := utils.GetLogFromContext(ctx, b.log)

	if data.ComponentType != discordgo.ButtonComponent {
		return nil
	}

	componentID, err := ParseComponentID(data.CustomID)
	if err != nil {
		log.Debug("ignoring component", zap.String("custom_id", data.CustomID), zap.Error(err))
		return nil
	}

	err = b.respondControl(ctx, e, componentID.Source, componentID.Action)
	if err != nil {
		b.respondError(ctx, e, "interaction_error", err)
	}

	return nil
}
