package game

// QuestionsPerSession is the number of questions drawn for every session, one per ladder tier.
const QuestionsPerSession = 10

// PrizeLadder holds the reward for answering the question at each index correctly.
var PrizeLadder = [QuestionsPerSession]int64{
	1000, 2500, 5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000,
}

// MaxPrize is the top of the ladder.
func MaxPrize() int64 {
	return PrizeLadder[QuestionsPerSession-1]
}

// SecuredScore is the prize of the last fully completed question when index is the current question.
func SecuredScore(index int) int64 {
	if index <= 0 {
		return 0
	}
	if index > QuestionsPerSession {
		index = QuestionsPerSession
	}
	return PrizeLadder[index-1]
}

// PotentialScore is what answering the question at index correctly would award.
func PotentialScore(index int) int64 {
	if index < 0 || index >= QuestionsPerSession {
		return 0
	}
	return PrizeLadder[index]
}

// Headline summarises a final score for the result screen.
func Headline(score int64) string {
	switch {
	case score == 0:
		return "Better Luck Next Time!"
	case score < 10000:
		return "Great Start!"
	case score < 50000:
		return "Impressive Knowledge!"
	case score < 100000:
		return "Master!"
	default:
		return "Perfect Game!"
	}
}
