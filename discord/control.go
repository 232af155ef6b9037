package discord

import (
	"context"
	"fmt"

	"github.com/K3das/hark/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *DiscordBot) controls(source ComponentIDSource) MessageContextControls {
	return MessageContextControls{
		Playing:          b.controller.IsPlaying(),
		PlayComponentID:  ComponentIDString(source, ComponentActionPlay),
		PauseComponentID: ComponentIDString(source, ComponentActionPause),
		FlushComponentID: ComponentIDString(source, ComponentActionFlush),
	}
}

// applyControl drives the pipeline and describes what happened.
func (b *DiscordBot) applyControl(ctx context.Context, source ComponentIDSource, action ComponentIDAction) (*MessageContextControlResponse, error) {
	log := utils.GetLogFromContext(ctx, b.log).With(zap.String("action", string(action)))

	response := &MessageContextControlResponse{
		Action: action,
	}

	switch action {
	case ComponentActionPlay:
		err := b.controller.Play()
		if err != nil {
			return nil, DiscordExecutionError{
				Message: "Couldn't start listening.",
				Err:     fmt.Errorf("playing: %w", err),
			}
		}
	case ComponentActionPause:
		response.Pending = b.controller.Pending()
		b.controller.Pause()
	case ComponentActionFlush:
		response.Pending = b.controller.Pending()
		b.controller.Flush()
	default:
		return nil, DiscordExecutionError{
			Message:   "Unknown action.",
			UserError: true,
		}
	}

	log.With(zap.Int("pending", response.Pending)).Info("applied control")

	response.Controls = b.controls(source)
	return response, nil
}

func (b *DiscordBot) respondControl(ctx context.Context, e *discordgo.InteractionCreate, source ComponentIDSource, action ComponentIDAction) error {
	if !b.isGuildInScope(e.GuildID) {
		return DiscordExecutionError{
			Message:   "This server can't control the recorder.",
			UserError: true,
		}
	}

	user, err := getInteractionUser(e)
	if err != nil {
		return err
	}
	ctx = utils.LogContext(ctx, zap.String("user_id", user.ID))

	response, err := b.applyControl(ctx, source, action)
	if err != nil {
		return err
	}

	output, err := b.executeMessageTemplate(ctx, "control_response", MessageContext{
		ControlResponse: response,
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
