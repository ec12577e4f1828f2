package triage

import "time"

// Profile is the immutable, process-wide triage configuration: the
// assistant persona, the scripted question set, and the canned message
// texts. It is passed in explicitly so tests can substitute fixed
// question sets.
type Profile struct {
	// Persona is the system instruction describing the assistant's role
	// and tone. Sent on every classification call.
	Persona string

	// WelcomeText is emitted once when a conversation begins.
	WelcomeText string

	// Questions are the scripted follow-up prompts, asked in order, one
	// per student message, before classification runs.
	Questions []string

	// ClosingText is emitted after classification (or its fallback).
	ClosingText string

	// UrgentNoticeText and CriticalNoticeText are the escalation notices
	// for urgency levels 2 and 3 respectively.
	UrgentNoticeText   string
	CriticalNoticeText string

	// QuestionDelay paces scripted messages so consecutive automated
	// messages do not render as one block. EscalationDelay paces the
	// escalation notice behind the closing message.
	QuestionDelay   time.Duration
	EscalationDelay time.Duration
}

// QuestionCount returns the number of scripted questions.
func (p *Profile) QuestionCount() int { return len(p.Questions) }

// NoticeFor returns the escalation notice wording for an urgency level,
// or "" when the level is below the escalation threshold.
func (p *Profile) NoticeFor(urgency int) string {
	switch {
	case urgency >= UrgencyCritical:
		return p.CriticalNoticeText
	case urgency >= UrgencyUrgent:
		return p.UrgentNoticeText
	default:
		return ""
	}
}

// DefaultProfile returns the production triage profile. Texts are in
// Vietnamese, matching the student population the service supports.
func DefaultProfile() *Profile {
	return &Profile{
		Persona: `Bạn là trợ lý tâm lý của phòng tham vấn học đường. Bạn trò chuyện với học sinh ` +
			`trước khi chuyên viên tham vấn có mặt: lắng nghe, không phán xét, không chẩn đoán, ` +
			`không đưa lời khuyên y tế. Luôn dùng tiếng Việt, giọng ấm áp và ngắn gọn.`,
		WelcomeText: `Chào bạn, mình là trợ lý của phòng tham vấn. Chuyên viên tham vấn sẽ sớm ` +
			`tham gia cuộc trò chuyện. Trong lúc chờ, bạn có thể chia sẻ với mình nhé.`,
		Questions: []string{
			`Bạn có thể kể thêm về điều đang làm bạn bận tâm nhất lúc này không?`,
			`Tình trạng này đã kéo dài bao lâu rồi, và nó ảnh hưởng thế nào đến việc học và giấc ngủ của bạn?`,
			`Bạn có ai để chia sẻ những điều này không - gia đình, bạn bè hay thầy cô?`,
		},
		ClosingText: `Cảm ơn bạn đã chia sẻ. Mình đã ghi nhận lại để chuyên viên tham vấn nắm được ` +
			`tình hình của bạn. Chuyên viên sẽ phản hồi bạn trong thời gian sớm nhất.`,
		UrgentNoticeText: `Mình nhận thấy bạn đang trải qua giai đoạn khó khăn. Trường hợp của bạn ` +
			`đã được ưu tiên và chuyên viên tham vấn sẽ liên hệ với bạn sớm.`,
		CriticalNoticeText: `Mình rất lo cho bạn. Trường hợp của bạn đã được chuyển ngay đến chuyên viên ` +
			`tham vấn. Nếu bạn thấy không an toàn, hãy gọi 111 (Tổng đài quốc gia bảo vệ trẻ em) ` +
			`hoặc tìm người lớn tin cậy ở gần bạn ngay nhé.`,
		QuestionDelay:   1500 * time.Millisecond,
		EscalationDelay: 2 * time.Second,
	}
}
