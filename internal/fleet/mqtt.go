package fleet

import (
	"encoding/json"
	"fmt"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/mqtt"
)

// TargetAll addresses every session on the command topic.
const TargetAll = "all"

// CommandSubscriber is the part of the MQTT client the command channel needs.
type CommandSubscriber interface {
	Topics() mqtt.Topics
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SubscribeCommands routes MQTT commands to the coordinator.
//
// Topics are yysbot/command/{session|serial} and yysbot/command/all with a
// JSON body such as {"action":"pause"}. On the "all" topic pause and resume
// mean pause_all and resume_all.
func SubscribeCommands(sub CommandSubscriber, c *Coordinator) error {
	topics := sub.Topics()
	return sub.Subscribe(topics.AllCommands(), 1, func(topic string, payload []byte) error {
		target, ok := topics.CommandTarget(topic)
		if !ok {
			return fmt.Errorf("%w: topic %s", ErrInvalidCommand, topic)
		}
		cmd, err := ParseCommand(target, payload)
		if err != nil {
			return err
		}
		return c.Submit(cmd)
	})
}

// ParseCommand decodes a command body addressed to target.
func ParseCommand(target string, payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if target == TargetAll {
		switch cmd.Action {
		case ActionPause:
			cmd.Action = ActionPauseAll
		case ActionResume:
			cmd.Action = ActionResumeAll
		}
		cmd.Session = ""
	} else if cmd.Session == "" {
		cmd.Session = target
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
