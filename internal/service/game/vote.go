package game

// VoteOutcome 是一次计票的结果
// TargetID 为空且 IsTie 为真表示最高票并列；返回 nil 表示没有任何有效票
type VoteOutcome struct {
	TargetID string
	Votes    int
	IsTie    bool
}

// ComputeVoteOutcome 统计 voter→target 的投票，skip 哨兵不计入
// 结果只取决于票型本身，与 map 的遍历顺序无关
func ComputeVoteOutcome(votes map[string]string) *VoteOutcome {
	tally := make(map[string]int)
	for _, targetID := range votes {
		if targetID == VOTE_SKIP {
			continue
		}
		tally[targetID]++
	}

	if len(tally) == 0 {
		return nil
	}

	maxVotes := 0
	for _, count := range tally {
		if count > maxVotes {
			maxVotes = count
		}
	}

	var (
		topTargetID string
		topCount    int
	)
	for targetID, count := range tally {
		if count == maxVotes {
			topCount++
			topTargetID = targetID
		}
	}

	if topCount > 1 {
		// 最高票并列，无人出局，区别于“没有有效票”
		return &VoteOutcome{Votes: maxVotes, IsTie: true}
	}

	return &VoteOutcome{TargetID: topTargetID, Votes: maxVotes}
}

// ResolveFinalPlea 结算终审投票：kill 严格多于 save 才处决，平票保命
func ResolveFinalPlea(finalVotes map[string]string) bool {
	killVotes, saveVotes := 0, 0
	for _, vote := range finalVotes {
		switch vote {
		case FINAL_VOTE_KILL:
			killVotes++
		case FINAL_VOTE_SAVE:
			saveVotes++
		}
	}

	return killVotes > saveVotes
}
