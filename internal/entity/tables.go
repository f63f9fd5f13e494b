package entity

// Table names double as change feed topics.
const (
	TableProfiles      = "profiles"
	TableFollows       = "follow_edges"
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableNotifications = "notifications"
	TablePosts         = "posts"
	TableLikes         = "likes"
	TableComments      = "comments"
)

// All lists every entity in migration order.
func All() []any {
	return []any{
		&Profile{},
		&FollowEdge{},
		&Conversation{},
		&Message{},
		&Notification{},
		&Post{},
		&Like{},
		&Comment{},
	}
}
