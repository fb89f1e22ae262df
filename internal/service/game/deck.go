package game

import (
	"fmt"
	"math/rand/v2"
)

// BuildRoleDeck 构建经典模式的角色牌堆：
// 狼人数量为 max(1, 人数/4)，特殊角色按人数阈值依次加入，剩余补村民
func BuildRoleDeck(count int) []string {
	werewolves := count / 4
	if werewolves < 1 {
		werewolves = 1
	}

	deck := make([]string, 0, count)
	for i := 0; i < werewolves; i++ {
		deck = append(deck, ROLE_WEREWOLF)
	}

	if count >= 5 {
		deck = append(deck, ROLE_SEER)
	}
	if count >= 6 {
		deck = append(deck, ROLE_BODYGUARD)
	}
	if count >= 7 {
		deck = append(deck, ROLE_HUNTER)
	}
	if count >= 8 {
		deck = append(deck, ROLE_WITCH)
	}
	if count >= 9 {
		deck = append(deck, ROLE_FOOL)
	}
	if count >= 10 {
		deck = append(deck, ROLE_DETECTIVE)
	}
	if count >= 11 {
		deck = append(deck, ROLE_SILENCER)
	}
	if count >= 12 {
		deck = append(deck, ROLE_CUPID)
	}

	for len(deck) < count {
		deck = append(deck, ROLE_VILLAGER)
	}

	shuffleDeck(deck)

	return deck
}

// BuildCustomRoleDeck 构建自定义模式的角色牌堆
// 校验失败时返回错误且不产生牌堆：总数必须等于玩家数，且至少一个狼人
func BuildCustomRoleDeck(count int, counts RoleCounts) ([]string, error) {
	counts = SanitizeRoleCounts(counts)

	total := 0
	for _, role := range roleOrder {
		total += counts[role]
	}

	if total != count {
		return nil, fmt.Errorf("自定义角色总数必须等于 %d，当前为 %d", count, total)
	}
	if counts[ROLE_WEREWOLF] < 1 {
		return nil, fmt.Errorf("自定义角色必须包含至少一个狼人")
	}

	deck := make([]string, 0, count)
	for _, role := range roleOrder {
		for i := 0; i < counts[role]; i++ {
			deck = append(deck, role)
		}
	}

	shuffleDeck(deck)

	return deck, nil
}

// SanitizeRoleCounts 把外部传入的配置收敛到合法范围，未知角色忽略
func SanitizeRoleCounts(raw RoleCounts) RoleCounts {
	counts := make(RoleCounts, len(roleOrder))
	for _, role := range roleOrder {
		n := raw[role]
		if n < 0 {
			n = 0
		}
		counts[role] = n
	}

	return counts
}

func shuffleDeck(deck []string) {
	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}
