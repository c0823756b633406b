package errors

var (
	// Domain errors used by the messaging and notification services.
	ErrSubjectNotFound      = NotFound("subject not found")
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrNotificationNotFound = NotFound("notification not found")

	ErrSelfConversation = InvalidArg("cannot start a conversation with yourself")
	ErrEmptyContent     = InvalidArg("message content cannot be empty")
	ErrContentTooLong   = InvalidArg("message content exceeds the maximum length")

	ErrMessagingDisabled = Forbidden("messaging is disabled for this subject")
	ErrNotParticipant    = Forbidden("user is not a participant in this conversation")
	ErrNotRecipient      = Forbidden("only the recipient can mark a message as read")
	ErrNotOwner          = Forbidden("notification belongs to another user")
)
