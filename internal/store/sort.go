package store

import (
	"sort"

	"github.com/webitel/im-gamification-service/internal/domain/model"
)

// SortBadges orders badges by rarity then points, both ascending, then by id.
func SortBadges(badges []model.Badge) {
	sort.SliceStable(badges, func(i, j int) bool {
		a, b := badges[i], badges[j]
		if a.Rarity.Rank() != b.Rarity.Rank() {
			return a.Rarity.Rank() < b.Rarity.Rank()
		}
		if a.Points != b.Points {
			return a.Points < b.Points
		}
		return a.ID < b.ID
	})
}
