package model

import "time"

// Client role values inside a crew conversation.
const (
	ChatRoleAdmin  = "admin"
	ChatRoleMember = "member"
)

// ChatPermissions is the governance object persisted alongside the chat
// reference.  It is derived deterministically from the client role when
// the chat is created and may be overridden later through the settings
// endpoint.
type ChatPermissions struct {
	CanSendMessages  bool `json:"can_send_messages"`
	CanAddMembers    bool `json:"can_add_members"`
	CanRemoveMembers bool `json:"can_remove_members"`
	CanEditChatInfo  bool `json:"can_edit_chat_info"`
}

// DefaultChatPermissions returns the permission matrix for a client role:
// admin gets everything, member only gets message sending.
func DefaultChatPermissions(clientRole string) ChatPermissions {
	if clientRole == ChatRoleAdmin {
		return ChatPermissions{
			CanSendMessages:  true,
			CanAddMembers:    true,
			CanRemoveMembers: true,
			CanEditChatInfo:  true,
		}
	}
	return ChatPermissions{CanSendMessages: true}
}

// CrewChat is the weak reference a gig holds to its external group
// conversation.  The messaging collaborator owns the conversation and its
// messages; the gig only stores the id, the client's role and the
// governance settings.
//
// Fields:
//  ConversationID – identifier returned by the messaging collaborator.
//  ClientRole     – "admin" or "member".
//  Permissions    – governance settings for the client inside the chat.
//  CreatedAt      – when the conversation was created for this gig.
type CrewChat struct {
	ConversationID string          // gigs.chat_conversation_id
	ClientRole     string          // gigs.chat_client_role
	Permissions    ChatPermissions // gigs.chat_can_* columns
	CreatedAt      time.Time       // gigs.chat_created_at
}
