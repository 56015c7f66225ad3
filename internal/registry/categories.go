package registry

import "strings"

// categoryKeywords maps item name substrings to display categories. Checked
// in order; first match wins.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"diamond", "Ores & Gems"},
	{"emerald", "Ores & Gems"},
	{"gold", "Ores & Gems"},
	{"iron", "Ores & Gems"},
	{"netherite", "Ores & Gems"},
	{"coal", "Ores & Gems"},
	{"quartz", "Ores & Gems"},
	{"lapis", "Ores & Gems"},
	{"redstone", "Redstone"},
	{"piston", "Redstone"},
	{"observer", "Redstone"},
	{"hopper", "Redstone"},
	{"sword", "Weapons"},
	{"bow", "Weapons"},
	{"trident", "Weapons"},
	{"arrow", "Weapons"},
	{"helmet", "Armor"},
	{"chestplate", "Armor"},
	{"leggings", "Armor"},
	{"boots", "Armor"},
	{"shield", "Armor"},
	{"pickaxe", "Tools"},
	{"shovel", "Tools"},
	{"axe", "Tools"},
	{"hoe", "Tools"},
	{"elytra", "Tools"},
	{"potion", "Brewing"},
	{"wart", "Brewing"},
	{"blaze", "Brewing"},
	{"book", "Enchanting"},
	{"enchant", "Enchanting"},
	{"wheat", "Food & Farming"},
	{"carrot", "Food & Farming"},
	{"potato", "Food & Farming"},
	{"beef", "Food & Farming"},
	{"pork", "Food & Farming"},
	{"bread", "Food & Farming"},
	{"melon", "Food & Farming"},
	{"pumpkin", "Food & Farming"},
	{"wood", "Building"},
	{"log", "Building"},
	{"plank", "Building"},
	{"stone", "Building"},
	{"brick", "Building"},
	{"glass", "Building"},
	{"concrete", "Building"},
	{"shulker", "Storage"},
	{"chest", "Storage"},
}

// categorize assigns a display category to an item name.
func categorize(name string) string {
	lower := strings.ToLower(name)
	for _, kc := range categoryKeywords {
		if strings.Contains(lower, kc.keyword) {
			return kc.category
		}
	}
	return "Miscellaneous"
}
