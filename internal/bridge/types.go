package bridge

// Actions understood by the peer.
const (
	ActionPing              = "ping"
	ActionGetPlayerInfo     = "getPlayerInfo"
	ActionGetInventory      = "getInventory"
	ActionGetStudents       = "getStudents"
	ActionGetTasks          = "getTasks"
	ActionTeleport          = "teleport"
	ActionSendChat          = "sendChat"
	ActionExecuteCommand    = "executeCommand"
	ActionAnimaChat         = "anima.chat"
	ActionAnimaGetStudents  = "anima.getStudents"
	ActionAnimaGetStudent   = "anima.getStudent"
	ActionAnimaClearHistory = "anima.clearHistory"
)

// Events published by the peer.
const (
	EventPlayerJoin     = "player:join"
	EventPlayerLeave    = "player:leave"
	EventPlayerChat     = "player:chat"
	EventPlayerDeath    = "player:death"
	EventPlayerRespawn  = "player:respawn"
	EventEntitySpawn    = "entity:spawn"
	EventEntityDeath    = "entity:death"
	EventWorldLoad      = "world:load"
	EventWorldUnload    = "world:unload"
	EventStudentMessage = "student:message"
	EventTaskComplete   = "task:complete"
	EventStudentReply   = "studentReply"
)

// EventNames lists every event the bridge knows about.
var EventNames = []string{
	EventPlayerJoin, EventPlayerLeave, EventPlayerChat, EventPlayerDeath,
	EventPlayerRespawn, EventEntitySpawn, EventEntityDeath, EventWorldLoad,
	EventWorldUnload, EventStudentMessage, EventTaskComplete, EventStudentReply,
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DefaultPosition is used when the peer omits a player's position.
var DefaultPosition = Position{X: 0, Y: 64, Z: 0}

type PlayerInfo struct {
	Name      string    `json:"name"`
	UUID      string    `json:"uuid"`
	Health    float64   `json:"health"`
	MaxHealth float64   `json:"maxHealth"`
	Hunger    int       `json:"hunger"`
	Level     int       `json:"level"`
	Position  *Position `json:"position"`
	Dimension string    `json:"dimension"`
	GameMode  string    `json:"gameMode"`
}

type InventorySlot struct {
	Slot  int            `json:"slot"`
	Item  string         `json:"item"`
	Count int            `json:"count"`
	NBT   map[string]any `json:"nbt,omitempty"`
}

type Inventory struct {
	Slots []InventorySlot `json:"slots"`
}

type TaskReward struct {
	Type   string `json:"type"`
	ItemID string `json:"itemId,omitempty"`
	Amount int    `json:"amount"`
	Icon   string `json:"icon,omitempty"`
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	Progress    int          `json:"progress"`
	MaxProgress int          `json:"maxProgress"`
	Rewards     []TaskReward `json:"rewards"`
	ExpiresAt   int64        `json:"expiresAt,omitempty"`
}

// ChatMessage is one line of a conversation with a student.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	StudentID string `json:"studentId,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

type PlayerChatEvent struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerJoinEvent struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

type EntitySpawnEvent struct {
	EntityID string   `json:"entityId"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

type StudentMessageEvent struct {
	StudentID string      `json:"studentId"`
	Message   ChatMessage `json:"message"`
}

type TaskCompleteEvent struct {
	TaskID string `json:"taskId"`
	Task   Task   `json:"task"`
}

// AnimaStudent is a roster entry as reported by the peer. IDs are lower case.
type AnimaStudent struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	NameEn           string `json:"nameEn,omitempty"`
	School           string `json:"school,omitempty"`
	Club             string `json:"club,omitempty"`
	Role             string `json:"role,omitempty"`
	HasActiveSession bool   `json:"hasActiveSession"`
	HistorySize      int    `json:"historySize,omitempty"`
}

type ChatResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StudentReplyEvent is the asynchronous answer to an anima.chat request.
type StudentReplyEvent struct {
	RequestID        string `json:"requestId"`
	StudentID        string `json:"studentId"`
	Success          bool   `json:"success"`
	Content          string `json:"content,omitempty"`
	Error            string `json:"error,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
}

type StudentsResponse struct {
	Success  bool           `json:"success"`
	Students []AnimaStudent `json:"students"`
	Error    string         `json:"error,omitempty"`
}

type StudentResponse struct {
	Success bool          `json:"success"`
	Student *AnimaStudent `json:"student,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type AckResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SDKConfig mirrors the host SDK settings. Durations are milliseconds.
type SDKConfig struct {
	Timeout      int  `json:"timeout"`
	Debug        bool `json:"debug"`
	PollInterval int  `json:"pollInterval"`
}

// DefaultSDKConfig is what the host SDK starts with.
var DefaultSDKConfig = SDKConfig{Timeout: 30000, Debug: false, PollInterval: 50}

type Status struct {
	Ready           bool      `json:"ready"`
	PendingRequests int       `json:"pendingRequests"`
	EventListeners  []string  `json:"eventListeners"`
	Config          SDKConfig `json:"config"`
}
