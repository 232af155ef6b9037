package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

const (
	CommandNameListen = "listen"
	CommandNamePause  = "pause"
	CommandNameFlush  = "flush"
)

var commandActions = map[string]ComponentIDAction{
	CommandNameListen: ComponentActionPlay,
	CommandNamePause:  ComponentActionPause,
	CommandNameFlush:  ComponentActionFlush,
}

func (b *DiscordBot) registerCommands(ctx context.Context) error {
	perms := int64(discordgo.PermissionManageChannels)
	guildOnly := &[]discordgo.InteractionContextType{discordgo.InteractionContextGuild}
	minRecent := float64(1)

	createdCommands, err := b.discord.ApplicationCommandBulkOverwrite(b.self.ID, "", []*discordgo.ApplicationCommand{
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     CommandNameListen,
			DefaultMemberPermissions: &perms,
			Description:              "Start transcribing from the microphone.",
			Contexts:                 guildOnly,
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     CommandNamePause,
			DefaultMemberPermissions: &perms,
			Description:              "Stop after the current utterance and drop anything queued.",
			Contexts:                 guildOnly,
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     CommandNameFlush,
			DefaultMemberPermissions: &perms,
			Description:              "Discard queued utterances without transcribing them.",
			Contexts:                 guildOnly,
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     CommandNameRecent,
			DefaultMemberPermissions: &perms,
			Description:              "Show the latest saved transcripts.",
			Contexts:                 guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        recentCountOption,
					Description: "How many transcripts to show.",
					MinValue:    &minRecent,
					MaxValue:    MaxRecentCount,
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}

	b.commandsMu.Lock()
	b.commands = make(map[string]*discordgo.ApplicationCommand)
	for _, command := range createdCommands {
		b.commands[command.Name] = command
	}
	b.commandsMu.Unlock()

	return nil
}

func (b *DiscordBot) handleCommandInteraction(ctx context.Context, e *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if data.Name == CommandNameRecent {
		err := b.respondRecent(ctx, e, data)
		if err != nil {
			b.respondError(ctx, e, "command_error", err)
		}
		return nil
	}

	action, ok := commandActions[data.Name]
	if !ok {
		return nil
	}

	err := b.respondControl(ctx, e, ComponentSourceCommand, action)
	if err != nil {
		b.respondError(ctx, e, "command_error", err)
	}

	return nil
}
