package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/K3das/hark/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type MessageOutput struct {
	Content    string                       `json:"content,omitempty"`
	Components []discordgo.MessageComponent `json:"components,omitempty"`
	Embeds     []*discordgo.MessageEmbed    `json:"embeds,omitempty"`
}

type messageOutputRaw struct {
	Content    string                    `json:"content,omitempty"`
	Components []json.RawMessage         `json:"components,omitempty"`
	Embeds     []*discordgo.MessageEmbed `json:"embeds,omitempty"`
}

// MessageContextControls are the pipeline buttons attached to bot messages.
type MessageContextControls struct {
	Playing          bool   `json:"playing"`
	PlayComponentID  string `json:"play_component_id"`
	PauseComponentID string `json:"pause_component_id"`
	FlushComponentID string `json:"flush_component_id"`
}

type MessageContextTranscript struct {
	Text       string   `json:"text"`
	Candidates []string `json:"candidates"`
	Tag        string   `json:"tag"`
	Sequence   uint64   `json:"sequence"`
	// seconds
	AudioDuration  float64 `json:"audio_duration"`
	ProcessingTime float64 `json:"processing_time"`

	Controls MessageContextControls `json:"controls"`
}

type MessageContextControlResponse struct {
	Action ComponentIDAction `json:"action"`
	// queued jobs dropped by this action
	Pending int `json:"pending"`

	Controls MessageContextControls `json:"controls"`
}

type MessageContextError struct {
	Message string `json:"message"`
}

type MessageContext struct {
	Transcript      *MessageContextTranscript      `json:"transcript,omitempty"`
	ControlResponse *MessageContextControlResponse `json:"control_response,omitempty"`

	RecentTranscripts *MessageContextRecentTranscripts `json:"recent_transcripts,omitempty"`

	InteractionError *MessageContextError `json:"interaction_error,omitempty"`
	CommandError     *MessageContextError `json:"command_error,omitempty"`

	Timestamp          string                                   `json:"timestamp"`
	RegisteredCommands map[string]*discordgo.ApplicationCommand `json:"registered_commands"`
}

func (b *DiscordBot) executeMessageTemplate(ctx context.Context, messageName string, data MessageContext) (*MessageOutput, error) {
	log := utils.GetLogFromContext(ctx, b.log)

	data.Timestamp = time.Now().UTC().Format(time.RFC3339)
	b.commandsMu.RLock()
	data.RegisteredCommands = b.commands
	defer b.commandsMu.RUnlock()

	jsonOut, err := b.messages.ExecuteMessage(messageName, data)
	if err != nil {
		return nil, err
	}

	output, err := decodeMessageOutput(jsonOut)
	if err != nil {
		return nil, err
	}

	log.With(zap.String("message", messageName)).Debug("rendered message template")

	return output, nil
}

func decodeMessageOutput(jsonOut string) (*MessageOutput, error) {
	var outputRaw messageOutputRaw
	err := json.Unmarshal([]byte(jsonOut), &outputRaw)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling output: %w", err)
	}

	output := &MessageOutput{
		Content: outputRaw.Content,
		Embeds:  outputRaw.Embeds,
	}

	for _, c := range outputRaw.Components {
		messageComponent, err := discordgo.MessageComponentFromJSON(c)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling component: %w", err)
		}
		output.Components = append(output.Components, messageComponent)
	}

	return output, nil
}
