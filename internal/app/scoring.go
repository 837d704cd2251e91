package app

import "quizplay-service/internal/domain"

// Score returns the points awarded for picking option selected on q:
// the question's points when it is the correct option, zero otherwise.
func Score(q domain.Question, selected int) int {
	if !q.ValidOption(selected) || selected != q.CorrectOption {
		return 0
	}
	return q.Points
}
