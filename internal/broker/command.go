package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CommandSync        = "sync"
	CommandSyncAll     = "sync_all"
	CommandSyncOptions = "sync_options"
	CommandPurge       = "purge"
	CommandUnpublish   = "unpublish"
)

// Command asks the synchronizer to run one operation, typically sent by a
// CMS webhook relay.
type Command struct {
	Action      string        `json:"action"`
	ContentType string        `json:"content_type"`
	ID          string        `json:"id"`
	Preview     bool          `json:"preview"`
	Delay       time.Duration `json:"-"`
}

type commandWire struct {
	Action      string          `json:"action"`
	ContentType string          `json:"content_type"`
	ID          json.RawMessage `json:"id"`
	Preview     bool            `json:"preview"`
	Delay       string          `json:"delay"`
}

// DecodeCommand parses and validates a command body. The id may be a JSON
// number or string, the delay a Go duration string.
func DecodeCommand(body []byte) (Command, error) {
	var wire commandWire
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}

	cmd := Command{
		Action:      wire.Action,
		ContentType: wire.ContentType,
		Preview:     wire.Preview,
	}

	if len(wire.ID) > 0 && string(wire.ID) != "null" {
		id, err := decodeID(wire.ID)
		if err != nil {
			return Command{}, err
		}
		cmd.ID = id
	}

	if wire.Delay != "" {
		d, err := time.ParseDuration(wire.Delay)
		if err != nil {
			return Command{}, fmt.Errorf("parse delay: %w", err)
		}
		if d < 0 {
			return Command{}, errors.New("delay must not be negative")
		}
		cmd.Delay = d
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	return n.String(), nil
}

func (c Command) Validate() error {
	switch c.Action {
	case CommandSyncOptions:
		return nil
	case CommandSyncAll:
		if c.ContentType == "" {
			return errors.New("content_type is required")
		}
		return nil
	case CommandSync, CommandPurge, CommandUnpublish:
		if c.ContentType == "" {
			return errors.New("content_type is required")
		}
		if c.ID == "" {
			return fmt.Errorf("id is required for %s", c.Action)
		}
		return nil
	case "":
		return errors.New("action is required")
	default:
		return fmt.Errorf("unknown action %q", c.Action)
	}
}
