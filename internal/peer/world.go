package peer

import (
	"github.com/gaspardpetit/shittim/internal/bridge"
)

// DefaultPersonas are the students the development peer can chat as.
func DefaultPersonas() []bridge.AnimaStudent {
	return []bridge.AnimaStudent{
		bridge.MockArona(),
		{ID: "alice", Name: "爱丽丝", NameEn: "Aris", School: "千年科学学园", Club: "游戏开发部", Role: "勇者"},
		{ID: "hoshino", Name: "星野", NameEn: "Hoshino", School: "阿拜多斯高中", Club: "对策委员会", Role: "委员长"},
		{ID: "hina", Name: "日奈", NameEn: "Hina", School: "格黑娜学园", Club: "风纪委员会", Role: "委员长"},
	}
}

func defaultPlayer() bridge.PlayerInfo {
	p := bridge.MockPlayerInfo()
	p.Level = 12
	p.Health = 18
	return p
}

func defaultInventory() bridge.Inventory {
	return bridge.Inventory{Slots: []bridge.InventorySlot{
		{Slot: 0, Item: "minecraft:diamond_sword", Count: 1},
		{Slot: 1, Item: "minecraft:bread", Count: 16},
		{Slot: 8, Item: "minecraft:torch", Count: 64},
	}}
}

func defaultTasks() []bridge.Task {
	return []bridge.Task{
		{
			ID: "daily-login", Title: "每日登录", Description: "登录游戏", Type: "daily",
			Status: "completed", Progress: 1, MaxProgress: 1,
			Rewards: []bridge.TaskReward{{Type: "item", ItemID: "minecraft:emerald", Amount: 1}},
		},
		{
			ID: "mine-iron", Title: "铁矿收集", Description: "挖掘 16 个铁矿", Type: "daily",
			Status: "in_progress", Progress: 5, MaxProgress: 16,
			Rewards: []bridge.TaskReward{{Type: "exp", Amount: 100}},
		},
	}
}
