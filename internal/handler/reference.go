package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/encounter-sync/internal/domain"
)

// referenceData holds the near-static rulebook collections served to
// clients. The dataset is compiled in; client SDKs cache it for the
// lifetime of a session.
var referenceData = map[string][]domain.ReferenceItem{
	domain.RefRaces: {
		{Index: "dragonborn", Name: "Dragonborn", URL: "/api/v1/reference/races/dragonborn"},
		{Index: "dwarf", Name: "Dwarf", URL: "/api/v1/reference/races/dwarf"},
		{Index: "elf", Name: "Elf", URL: "/api/v1/reference/races/elf"},
		{Index: "gnome", Name: "Gnome", URL: "/api/v1/reference/races/gnome"},
		{Index: "half-elf", Name: "Half-Elf", URL: "/api/v1/reference/races/half-elf"},
		{Index: "half-orc", Name: "Half-Orc", URL: "/api/v1/reference/races/half-orc"},
		{Index: "halfling", Name: "Halfling", URL: "/api/v1/reference/races/halfling"},
		{Index: "human", Name: "Human", URL: "/api/v1/reference/races/human"},
		{Index: "tiefling", Name: "Tiefling", URL: "/api/v1/reference/races/tiefling"},
	},
	domain.RefClasses: {
		{Index: "barbarian", Name: "Barbarian", URL: "/api/v1/reference/classes/barbarian"},
		{Index: "bard", Name: "Bard", URL: "/api/v1/reference/classes/bard"},
		{Index: "cleric", Name: "Cleric", URL: "/api/v1/reference/classes/cleric"},
		{Index: "druid", Name: "Druid", URL: "/api/v1/reference/classes/druid"},
		{Index: "fighter", Name: "Fighter", URL: "/api/v1/reference/classes/fighter"},
		{Index: "monk", Name: "Monk", URL: "/api/v1/reference/classes/monk"},
		{Index: "paladin", Name: "Paladin", URL: "/api/v1/reference/classes/paladin"},
		{Index: "ranger", Name: "Ranger", URL: "/api/v1/reference/classes/ranger"},
		{Index: "rogue", Name: "Rogue", URL: "/api/v1/reference/classes/rogue"},
		{Index: "sorcerer", Name: "Sorcerer", URL: "/api/v1/reference/classes/sorcerer"},
		{Index: "warlock", Name: "Warlock", URL: "/api/v1/reference/classes/warlock"},
		{Index: "wizard", Name: "Wizard", URL: "/api/v1/reference/classes/wizard"},
	},
	domain.RefEquipment: {
		{Index: "club", Name: "Club", URL: "/api/v1/reference/equipment/club"},
		{Index: "dagger", Name: "Dagger", URL: "/api/v1/reference/equipment/dagger"},
		{Index: "greatsword", Name: "Greatsword", URL: "/api/v1/reference/equipment/greatsword"},
		{Index: "longbow", Name: "Longbow", URL: "/api/v1/reference/equipment/longbow"},
		{Index: "longsword", Name: "Longsword", URL: "/api/v1/reference/equipment/longsword"},
		{Index: "quarterstaff", Name: "Quarterstaff", URL: "/api/v1/reference/equipment/quarterstaff"},
		{Index: "shield", Name: "Shield", URL: "/api/v1/reference/equipment/shield"},
		{Index: "shortbow", Name: "Shortbow", URL: "/api/v1/reference/equipment/shortbow"},
		{Index: "shortsword", Name: "Shortsword", URL: "/api/v1/reference/equipment/shortsword"},
		{Index: "warhammer", Name: "Warhammer", URL: "/api/v1/reference/equipment/warhammer"},
	},
	domain.RefSpells: {
		{Index: "acid-arrow", Name: "Acid Arrow", URL: "/api/v1/reference/spells/acid-arrow"},
		{Index: "cure-wounds", Name: "Cure Wounds", URL: "/api/v1/reference/spells/cure-wounds"},
		{Index: "fire-bolt", Name: "Fire Bolt", URL: "/api/v1/reference/spells/fire-bolt"},
		{Index: "fireball", Name: "Fireball", URL: "/api/v1/reference/spells/fireball"},
		{Index: "healing-word", Name: "Healing Word", URL: "/api/v1/reference/spells/healing-word"},
		{Index: "mage-armor", Name: "Mage Armor", URL: "/api/v1/reference/spells/mage-armor"},
		{Index: "magic-missile", Name: "Magic Missile", URL: "/api/v1/reference/spells/magic-missile"},
		{Index: "shield", Name: "Shield", URL: "/api/v1/reference/spells/shield"},
		{Index: "sleep", Name: "Sleep", URL: "/api/v1/reference/spells/sleep"},
		{Index: "thunderwave", Name: "Thunderwave", URL: "/api/v1/reference/spells/thunderwave"},
	},
	domain.RefMonsters: {
		{Index: "adult-red-dragon", Name: "Adult Red Dragon", URL: "/api/v1/reference/monsters/adult-red-dragon"},
		{Index: "bandit", Name: "Bandit", URL: "/api/v1/reference/monsters/bandit"},
		{Index: "dire-wolf", Name: "Dire Wolf", URL: "/api/v1/reference/monsters/dire-wolf"},
		{Index: "goblin", Name: "Goblin", URL: "/api/v1/reference/monsters/goblin"},
		{Index: "hobgoblin", Name: "Hobgoblin", URL: "/api/v1/reference/monsters/hobgoblin"},
		{Index: "kobold", Name: "Kobold", URL: "/api/v1/reference/monsters/kobold"},
		{Index: "ogre", Name: "Ogre", URL: "/api/v1/reference/monsters/ogre"},
		{Index: "orc", Name: "Orc", URL: "/api/v1/reference/monsters/orc"},
		{Index: "skeleton", Name: "Skeleton", URL: "/api/v1/reference/monsters/skeleton"},
		{Index: "troll", Name: "Troll", URL: "/api/v1/reference/monsters/troll"},
		{Index: "zombie", Name: "Zombie", URL: "/api/v1/reference/monsters/zombie"},
	},
}

// GetReference serves one reference data collection
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	items, ok := referenceData[collection]
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrCollectionNotFound)
		return
	}

	h.writeSuccess(w, items)
}
