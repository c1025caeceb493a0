package services

import "strings"

// ChatService answers member support questions by keyword match. No model,
// no external calls; replies come from a fixed phrase table.
type ChatService struct {
	replies  []chatReply
	fallback string
}

type chatReply struct {
	keyword string
	reply   string
}

func NewChatService() *ChatService {
	return &ChatService{
		replies: []chatReply{
			{"reset password", "Click 'Forgot Password' on the login page."},
			{"hello", "Hi there! How can I help?"},
			{"hi", "Hello! How can I assist you today?"},
			{"account", "Your account details are on the dashboard."},
			{"deposit", "Your deposit status and balances are shown on the dashboard."},
			{"transfer", "You can transfer funds from the Transfer page."},
			{"card", "Manage your cards on the Cards page."},
		},
		fallback: "Sorry, I didn't understand that.",
	}
}

// Reply returns the canned response for the first matching keyword.
func (s *ChatService) Reply(message string) string {
	message = strings.ToLower(message)
	for _, r := range s.replies {
		if strings.Contains(message, r.keyword) {
			return r.reply
		}
	}
	return s.fallback
}
