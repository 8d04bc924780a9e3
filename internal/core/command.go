package core

// CommandKind enumerates actions a client can ask the hub to perform.
type CommandKind string

const (
	CommandSendMessage CommandKind = "send_message"
	CommandTyping      CommandKind = "typing"
	CommandMarkRead    CommandKind = "mark_read"
	CommandPing        CommandKind = "ping"
	CommandListOnline  CommandKind = "list_online"
)

// Command is a decoded inbound frame. Only the fields relevant to Kind are set.
type Command struct {
	Kind CommandKind

	// SenderID/ReaderID are the ids the client claimed; zero means absent.
	SenderID   int64
	ReceiverID int64
	ReaderID   int64

	ContextID  string
	Body       string
	Attachment string

	IsTyping   bool
	MessageIDs []int64
}
