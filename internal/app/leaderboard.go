package app

import (
	"time"

	"quizplay-service/internal/domain"
)

// ProjectLeaderboard assigns display ranks to scores already ordered by the store.
// The order is kept as given; equal scores are not re-ranked.
func ProjectLeaderboard(sessionID string, scores []domain.PlayerScore, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(scores))
	for i, s := range scores {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:       i + 1,
			Leader:     i == 0,
			ScoreID:    s.ID,
			PlayerName: s.PlayerName,
			Score:      s.Score,
		})
	}
	return domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
		UpdatedAt: now,
	}
}
