package discord

import (
	"fmt"
	"strings"
)

const ComponentIDPrefix = "h:"

type ComponentIDSource string
type ComponentIDAction string

const (
	ComponentSourceTranscript = ComponentIDSource("transcript")
	ComponentSourceCommand    = ComponentIDSource("command")
)

const (
	ComponentActionPlay  = ComponentIDAction("play")
	ComponentActionPause = ComponentIDAction("pause")
	ComponentActionFlush = ComponentIDAction("flush")
)

// ComponentID is the custom id carried by bot buttons, "h:<source>:<action>".
type ComponentID struct {
	// Source is where the button was rendered, ie: "transcript"
	Source ComponentIDSource

	// Action is the pipeline control it triggers, ie: "pause"
	Action ComponentIDAction
}

var (
	ErrComponentIDInvalidPrefix = fmt.Errorf("invalid component id prefix")
	ErrComponentIDInvalidParts  = fmt.Errorf("incorrect number of parts in component id")
	ErrComponentIDUnknownAction = fmt.Errorf("unknown component action")
)

func ParseComponentID(id string) (*ComponentID, error) {
	id, found := strings.CutPrefix(id, ComponentIDPrefix)
	if !found {
		return nil, ErrComponentIDInvalidPrefix
	}

	source, action, found := strings.Cut(id, ":")
	if !found || source == "" || strings.Contains(action, ":") {
		return nil, ErrComponentIDInvalidParts
	}

	parsedID := &ComponentID{
		Source: ComponentIDSource(source),
		Action: ComponentIDAction(action),
	}
	if !parsedID.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrComponentIDUnknownAction, action)
	}

	return parsedID, nil
}

func (a ComponentIDAction) Valid() bool {
	switch a {
	case ComponentActionPlay, ComponentActionPause, ComponentActionFlush:
		return true
	}
	return false
}

func (c *ComponentID) String() string {
	return ComponentIDPrefix + string(c.Source) + ":" + string(c.Action)
}

func ComponentIDString(source ComponentIDSource, action ComponentIDAction) string {
	componentID := &ComponentID{
		Source: source,
		Action: action,
	}
	return componentID.String()
}
