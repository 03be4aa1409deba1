package service

import (
	"fmt"

	"github.com/webitel/im-gamification-service/internal/domain/model"
)

const DefaultLocale = "en"

type template struct {
	title   string
	message string
	// number of render args consumed by title
	titleArgs int
}

var templates = map[string]map[model.NotificationType]template{
	"en": {
		model.NotificationBadgeEarned:         {title: "Badge earned!", message: "You earned the %s badge."},
		model.NotificationAchievementUnlocked: {title: "Achievement unlocked!", message: "You unlocked %s."},
		model.NotificationLevelUp:             {title: "Level up!", message: "You reached level %d."},
		model.NotificationStreakMilestone:     {title: "%d-day streak!", message: "You kept your login streak for %d days.", titleArgs: 1},
		model.NotificationXPGained:            {title: "+%d XP", message: "You now have %d XP in total.", titleArgs: 1},
	},
	"uk": {
		model.NotificationBadgeEarned:         {title: "Новий значок!", message: "Ви отримали значок «%s»."},
		model.NotificationAchievementUnlocked: {title: "Досягнення розблоковано!", message: "Ви розблокували «%s»."},
		model.NotificationLevelUp:             {title: "Новий рівень!", message: "Ви досягли рівня %d."},
		model.NotificationStreakMilestone:     {title: "Серія %d днів!", message: "Ви заходите %d днів поспіль.", titleArgs: 1},
		model.NotificationXPGained:            {title: "+%d XP", message: "Тепер у вас %d XP.", titleArgs: 1},
	},
}

// render builds a localized title and message. Title placeholders consume
// args first; the message repeats the last title arg when it has none left.
func render(locale string, t model.NotificationType, args ...any) (string, string) {
	set, ok := templates[locale]
	if !ok {
		set = templates[DefaultLocale]
	}
	tpl, ok := set[t]
	if !ok {
		return string(t), ""
	}

	title := tpl.title
	if tpl.titleArgs > 0 {
		title = fmt.Sprintf(tpl.title, args[:tpl.titleArgs]...)
	}
	msgArgs := args[tpl.titleArgs:]
	if len(msgArgs) == 0 && len(args) > 0 {
		msgArgs = args[len(args)-1:]
	}
	return title, fmt.Sprintf(tpl.message, msgArgs...)
}
