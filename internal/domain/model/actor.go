package model

import (
	"fmt"
	"strings"
)

type ActorKind string

const (
	ActorKindSystem      ActorKind = "SYSTEM"
	ActorKindChatMember  ActorKind = "CHAT_MEMBER"
	ActorKindWebOperator ActorKind = "WEB_OPERATOR"
)

// Actor identifies who issued a moderation verdict. Audit rows keep the
// rendered identifier, so both fields are immutable after construction.
type Actor struct {
	Kind        ActorKind
	ID          int64
	DisplayName string
}

func SystemActor(name string) Actor {
	return Actor{Kind: ActorKindSystem, DisplayName: name}
}

func ChatMemberActor(tgID int64, displayName string) Actor {
	return Actor{Kind: ActorKindChatMember, ID: tgID, DisplayName: displayName}
}

func WebOperatorActor(id int64, displayName string) Actor {
	return Actor{Kind: ActorKindWebOperator, ID: id, DisplayName: displayName}
}

// Identifier renders a stable string for audit storage, e.g. "system:detector"
// or "tg:123456".
func (a Actor) Identifier() string {
	switch a.Kind {
	case ActorKindSystem:
		return "system:" + a.DisplayName
	case ActorKindChatMember:
		return fmt.Sprintf("tg:%d", a.ID)
	case ActorKindWebOperator:
		return fmt.Sprintf("web:%d", a.ID)
	default:
		return "unknown"
	}
}

func (a Actor) Label() string {
	name := strings.TrimSpace(a.DisplayName)
	if name != "" {
		return name
	}
	return a.Identifier()
}
