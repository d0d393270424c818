package bridge

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/shittim/internal/bridge/events"
)

// CannedReplies are the mock answers per lower-case student id.
var CannedReplies = map[string][]string{
	"arona": {
		"老师，早上好~！今天也要一起加油哦！(≧▽≦)",
		"阿罗娜会一直陪着老师的！",
		"嘿嘿，老师说的话阿罗娜都记住了~",
		"老师有什么需要帮忙的吗？阿罗娜随时待命！",
	},
}

// GenericReply answers students without canned replies.
const GenericReply = "收到老师的消息了~"

// ErrStudentNotFound is the message returned for unknown students.
const ErrStudentNotFound = "未找到学生"

// CannedReply picks a mock answer for studentID. pick returns an index in
// [0, n).
func CannedReply(studentID string, pick func(n int64) int64) string {
	replies := CannedReplies[strings.ToLower(studentID)]
	if len(replies) == 0 {
		return GenericReply
	}
	return replies[pick(int64(len(replies)))]
}

// MockPlayerInfo is the player reported when no peer is reachable.
func MockPlayerInfo() PlayerInfo {
	pos := DefaultPosition
	return PlayerInfo{
		Name:      "Sensei",
		UUID:      "00000000-0000-0000-0000-000000000000",
		Health:    20,
		MaxHealth: 20,
		Hunger:    20,
		Level:     1,
		Position:  &pos,
		Dimension: "minecraft:overworld",
		GameMode:  "survival",
	}
}

// MockArona is the only student known in mock mode.
func MockArona() AnimaStudent {
	return AnimaStudent{
		ID:     "arona",
		Name:   "阿罗娜",
		NameEn: "Arona",
		School: "联邦学生会",
		Club:   "Shittim 箱",
		Role:   "系统管理 AI",
	}
}

type studentPayload struct {
	StudentID string `json:"studentId"`
	Message   string `json:"message"`
}

// mockResponse answers action locally. It never fails.
func (c *Client) mockResponse(action string, payload any) json.RawMessage {
	c.log.Debug().Str("action", action).Msg("mock call")
	var out any
	switch action {
	case ActionGetPlayerInfo:
		out = MockPlayerInfo()
	case ActionGetInventory:
		out = Inventory{Slots: []InventorySlot{}}
	case ActionGetStudents, ActionGetTasks:
		out = []any{}
	case ActionAnimaGetStudents:
		out = StudentsResponse{Success: true, Students: []AnimaStudent{MockArona()}}
	case ActionAnimaGetStudent:
		p := decodeStudentPayload(payload)
		if strings.EqualFold(p.StudentID, "arona") {
			a := MockArona()
			out = StudentResponse{Success: true, Student: &a}
		} else {
			out = StudentResponse{Success: false, Error: ErrStudentNotFound}
		}
	case ActionAnimaChat:
		p := decodeStudentPayload(payload)
		id := "mock-" + uuid.NewString()
		c.scheduleMockReply(id, p.StudentID)
		out = ChatResponse{Success: true, RequestID: id}
	default:
		out = AckResponse{Success: true}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{"success":true}`)
	}
	return b
}

func decodeStudentPayload(payload any) studentPayload {
	var p studentPayload
	b, err := encodePayload(payload)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(b, &p)
	return p
}

func (c *Client) mockReplyDelay() time.Duration {
	spread := c.opts.MockReplyMax - c.opts.MockReplyMin
	if spread <= 0 {
		return c.opts.MockReplyMin
	}
	return c.opts.MockReplyMin + time.Duration(c.opts.Rand(int64(spread)))
}

// scheduleMockReply dispatches a studentReply for requestID after a delay.
func (c *Client) scheduleMockReply(requestID, studentID string) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if c.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(c.mockReplyDelay(), func() {
		c.timersMu.Lock()
		delete(c.timers, t)
		c.timersMu.Unlock()

		reply := StudentReplyEvent{
			RequestID:        requestID,
			StudentID:        studentID,
			Success:          true,
			Content:          CannedReply(studentID, c.opts.Rand),
			PromptTokens:     100,
			CompletionTokens: 50,
		}
		ev, err := events.New(EventStudentReply, reply)
		if err != nil {
			c.log.Error().Err(err).Msg("encode mock reply")
			return
		}
		ev.ID = requestID
		ev.Source = events.SourceMock
		mockReplies.Inc()
		c.bus.Dispatch(ev)
	})
	c.timers[t] = struct{}{}
}
