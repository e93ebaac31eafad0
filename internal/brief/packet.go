package brief

// PacketQuestion is a question offered to the interviewee for selection.
type PacketQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

// Packet is the interviewee-facing summary sent before the conversation.
type Packet struct {
	CompanyName     string           `json:"companyName"`
	PreparedFor     string           `json:"preparedFor,omitempty"`
	WhatWeLearned   string           `json:"whatWeLearned"`
	AccuracyRequest string           `json:"accuracyRequest,omitempty"`
	QuestionMenu    []PacketQuestion `json:"questionMenu"`
	Logistics       string           `json:"logistics,omitempty"`
	SourcesUsed     []string         `json:"sourcesUsed,omitempty"`
	OptOutNote      string           `json:"optOutNote,omitempty"`
}

// MaxPacketQuestions bounds the question menu shown to the interviewee.
const MaxPacketQuestions = 6

// PacketMenu derives the interviewee question menu from the first questions
// of the brief.
func PacketMenu(b Brief) []PacketQuestion {
	n := min(len(b.Questions), MaxPacketQuestions)
	menu := make([]PacketQuestion, 0, n)
	for _, q := range b.Questions[:n] {
		menu = append(menu, PacketQuestion{ID: q.ID, Question: q.Text, Context: q.Objective})
	}
	return menu
}
