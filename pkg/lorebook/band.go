package lorebook

import (
	"cardforge/pkg/utils"
)

// Insertion order bands. Lower values are inserted with higher precedence.
const (
	BandIdentity     = 5
	BandWorld        = 20
	BandLocation     = 40
	BandDefault      = 50
	BandRelationship = 60
	BandCulture      = 80
	BandAbility      = 95
)

var Bands = []int{BandIdentity, BandWorld, BandLocation, BandDefault, BandRelationship, BandCulture, BandAbility}

type band struct {
	order    int
	keywords []string
}

// bands are checked in order; the first match wins.
var bands = []band{
	{BandIdentity, []string{"personality", "appearance", "identity", "core", "basic", "성격", "외모", "정체성", "핵심", "기본"}},
	{BandWorld, []string{"world", "setting", "history", "kingdom", "세계", "설정", "역사", "시대"}},
	{BandLocation, []string{"location", "place", "city", "town", "home", "building", "장소", "위치", "도시", "마을", "집"}},
	{BandRelationship, []string{"relationship", "family", "friend", "lover", "rival", "관계", "가족", "친구", "연인", "라이벌"}},
	{BandCulture, []string{"culture", "society", "custom", "tradition", "religion", "politic", "문화", "사회", "관습", "전통", "종교"}},
	{BandAbility, []string{"ability", "skill", "power", "magic", "special", "능력", "기술", "마법", "특수", "특기"}},
}

// Band infers an insertion order from an entry's title, falling back to its
// content when the title matches nothing.
func Band(title, content string) int {
	for _, text := range []string{title, content} {
		if text == "" {
			continue
		}
		for _, b := range bands {
			if utils.StringContains(text, false, b.keywords...) {
				return b.order
			}
		}
	}
	return BandDefault
}
