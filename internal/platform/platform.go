// Package platform defines the boundary between the engine and whatever
// chat platform (QQ, Kook, HeyBox, ...) delivers messages to it. Concrete
// adapters are out of scope for this engine; this package only fixes the
// shapes internal/app and internal/plugin are built against, the same way
// the teacher's websocket handler is built against a small inline service
// interface rather than a concrete type.
package platform

import "context"

// Author identifies the sender of a Message.
type Author struct {
	ID          string
	DisplayName string
}

// Message is one inbound chat message, normalized across platforms.
type Message struct {
	Platform    string
	ID          string
	ChannelID   string
	GuildID     string
	Content     string
	Author      Author
	TimestampMS int64
	Raw         any
	Extra       map[string]any
}

// Reply is the destination a platform adapter sends a handler's Response
// to. Adapters implement this against their own SDK client.
type Reply interface {
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, imagePath string) error
}
