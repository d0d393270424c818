package bridge

import (
	"context"
	"errors"
)

// PlayerInfo returns the current player. It never fails: without a peer, or
// when the peer errors, the mock player is returned. A missing position is
// filled with DefaultPosition.
func (c *Client) PlayerInfo(ctx context.Context) PlayerInfo {
	if c.Resolve(ctx).Kind == KindMock {
		return MockPlayerInfo()
	}
	info, err := CallAs[PlayerInfo](ctx, c, ActionGetPlayerInfo, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("getPlayerInfo failed; using mock data")
		return MockPlayerInfo()
	}
	if info.Position == nil {
		pos := DefaultPosition
		info.Position = &pos
	}
	return info
}

// Inventory returns the player's inventory, or an empty one on failure.
func (c *Client) Inventory(ctx context.Context) Inventory {
	if c.Resolve(ctx).Kind == KindMock {
		return Inventory{Slots: []InventorySlot{}}
	}
	inv, err := CallAs[Inventory](ctx, c, ActionGetInventory, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("getInventory failed; using empty inventory")
		return Inventory{Slots: []InventorySlot{}}
	}
	if inv.Slots == nil {
		inv.Slots = []InventorySlot{}
	}
	return inv
}

// Tasks returns the task board, or no tasks on failure.
func (c *Client) Tasks(ctx context.Context) []Task {
	if c.Resolve(ctx).Kind == KindMock {
		return []Task{}
	}
	tasks, err := CallAs[[]Task](ctx, c, ActionGetTasks, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("getTasks failed; using empty task list")
		return []Task{}
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks
}

func (c *Client) Teleport(ctx context.Context, x, y, z float64) error {
	if c.Resolve(ctx).Kind == KindMock {
		c.log.Debug().Float64("x", x).Float64("y", y).Float64("z", z).Msg("mock teleport")
		return nil
	}
	_, err := c.Call(ctx, ActionTeleport, Position{X: x, Y: y, Z: z})
	return err
}

func (c *Client) SendChat(ctx context.Context, message string) error {
	if c.Resolve(ctx).Kind == KindMock {
		c.log.Debug().Str("message", message).Msg("mock sendChat")
		return nil
	}
	_, err := c.Call(ctx, ActionSendChat, map[string]string{"message": message})
	return err
}

func (c *Client) ExecuteCommand(ctx context.Context, command string) error {
	if c.Resolve(ctx).Kind == KindMock {
		c.log.Debug().Str("command", command).Msg("mock executeCommand")
		return nil
	}
	_, err := c.Call(ctx, ActionExecuteCommand, map[string]string{"command": command})
	return err
}

// StudentChat sends message to a student. The answer arrives later as a
// studentReply event carrying the returned request id.
func (c *Client) StudentChat(ctx context.Context, studentID, message string) (ChatResponse, error) {
	resp, err := CallAs[ChatResponse](ctx, c, ActionAnimaChat, studentPayload{StudentID: studentID, Message: message})
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, &ApplicationError{Action: ActionAnimaChat, Message: failureMessage(resp.Error)}
	}
	return resp, nil
}

// Students fetches the registered student roster.
func (c *Client) Students(ctx context.Context) (StudentsResponse, error) {
	resp, err := CallAs[StudentsResponse](ctx, c, ActionAnimaGetStudents, struct{}{})
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, &ApplicationError{Action: ActionAnimaGetStudents, Message: failureMessage(resp.Error)}
	}
	return resp, nil
}

// Student fetches one registered student.
func (c *Client) Student(ctx context.Context, studentID string) (StudentResponse, error) {
	resp, err := CallAs[StudentResponse](ctx, c, ActionAnimaGetStudent, map[string]string{"studentId": studentID})
	if err != nil {
		var ae *ApplicationError
		if errors.As(err, &ae) {
			return StudentResponse{Success: false, Error: ae.Message}, err
		}
		return resp, err
	}
	if !resp.Success {
		return resp, &ApplicationError{Action: ActionAnimaGetStudent, Message: failureMessage(resp.Error)}
	}
	return resp, nil
}

// ClearHistory drops the conversation history of studentID, or of every
// student when studentID is empty.
func (c *Client) ClearHistory(ctx context.Context, studentID string) (AckResponse, error) {
	var payload any = struct{}{}
	if studentID != "" {
		payload = map[string]string{"studentId": studentID}
	}
	resp, err := CallAs[AckResponse](ctx, c, ActionAnimaClearHistory, payload)
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, &ApplicationError{Action: ActionAnimaClearHistory, Message: failureMessage(resp.Error)}
	}
	return resp, nil
}

// OnStudentReply subscribes fn to decoded studentReply events.
func (c *Client) OnStudentReply(fn func(StudentReplyEvent)) *Subscription {
	return c.On(EventStudentReply, func(ev Event) {
		var reply StudentReplyEvent
		if err := ev.Decode(&reply); err != nil {
			c.log.Warn().Err(err).Msg("malformed studentReply event")
			return
		}
		fn(reply)
	})
}

func failureMessage(msg string) string {
	if msg == "" {
		return "request failed"
	}
	return msg
}
