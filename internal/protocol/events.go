package protocol

// GetOnlineUsers asks for the requester's roster.
type GetOnlineUsers struct{}

// PrivateMessage sends content to one user.
type PrivateMessage struct {
	ReceiverID uint   `json:"receiver_id"`
	Content    string `json:"content"`
}

// GetChatHistory asks for the conversation with UserID.
type GetChatHistory struct {
	UserID uint `json:"user_id"`
}

// MarkAsRead acknowledges everything SenderID sent to the requester.
type MarkAsRead struct {
	SenderID uint `json:"sender_id"`
}

func (GetOnlineUsers) Kind() Kind { return KindGetOnlineUsers }
func (PrivateMessage) Kind() Kind { return KindPrivateMessage }
func (GetChatHistory) Kind() Kind { return KindGetChatHistory }
func (MarkAsRead) Kind() Kind     { return KindMarkAsRead }

func (GetOnlineUsers) clientEvent() {}
func (PrivateMessage) clientEvent() {}
func (GetChatHistory) clientEvent() {}
func (MarkAsRead) clientEvent()     {}

// RosterEntry is one user in a personalized roster.
type RosterEntry struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"is_online"`
}

// OnlineUsers is a personalized roster; it never lists the recipient.
type OnlineUsers struct {
	Users []RosterEntry `json:"users"`
}

// UserStatusChanged announces a presence transition.
type UserStatusChanged struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	IsOnline  bool   `json:"is_online"`
	Timestamp string `json:"timestamp"`
}

// UnreadCounts maps sender id to the number of unread messages.
type UnreadCounts map[uint]int64

// NewMessage carries one message, to its sender as acknowledgment and to
// its receiver as delivery.
type NewMessage struct {
	ID         uint   `json:"id"`
	SenderID   uint   `json:"sender_id"`
	SenderName string `json:"sender_name"`
	ReceiverID uint   `json:"receiver_id"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// HistoryMessage is a NewMessage plus its read flag.
type HistoryMessage struct {
	NewMessage
	Read bool `json:"read"`
}

// ChatHistory is the ordered conversation with OtherUserID.
type ChatHistory struct {
	Messages    []HistoryMessage `json:"messages"`
	OtherUserID uint             `json:"other_user_id"`
}

func (OnlineUsers) Kind() Kind       { return KindOnlineUsers }
func (UserStatusChanged) Kind() Kind { return KindUserStatusChanged }
func (UnreadCounts) Kind() Kind      { return KindUnreadCounts }
func (NewMessage) Kind() Kind        { return KindNewMessage }
func (ChatHistory) Kind() Kind       { return KindChatHistory }

func (OnlineUsers) serverEvent()       {}
func (UserStatusChanged) serverEvent() {}
func (UnreadCounts) serverEvent()      {}
func (NewMessage) serverEvent()        {}
func (ChatHistory) serverEvent()       {}
