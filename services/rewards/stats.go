package rewards

import "fmt"

// TasksPerLevel is how many verified tasks it takes to gain a level.
const TasksPerLevel = 5

func LevelFor(tasksCompleted int) int {
	return tasksCompleted/TasksPerLevel + 1
}

// award applies one verified task. The streak counts verified tasks, not
// calendar days.
func (s UserStats) award(reward int64) UserStats {
	s.TotalCoins += reward
	s.TasksCompleted++
	s.CurrentStreak++
	s.Level = LevelFor(s.TasksCompleted)
	return s
}

// Aggregate recomputes the derived totals from the verified tasks. Fields
// that cannot be derived from tasks (streak, totalSaved) are carried over
// from prev.
func Aggregate(tasks []Task, prev UserStats) UserStats {
	out := prev
	out.TotalCoins = 0
	out.TasksCompleted = 0
	for _, t := range tasks {
		if !t.Verified() {
			continue
		}
		out.TotalCoins += t.Reward
		out.TasksCompleted++
	}
	out.Level = LevelFor(out.TasksCompleted)
	return out
}

// Consistent reports whether stats matches the fold over tasks.
func Consistent(tasks []Task, stats UserStats) bool {
	want := Aggregate(tasks, stats)
	return want.TotalCoins == stats.TotalCoins &&
		want.TasksCompleted == stats.TasksCompleted &&
		want.Level == stats.Level
}

// Audit lists every way stats disagrees with the fold over tasks, and every
// task whose flags contradict each other.
func Audit(tasks []Task, stats UserStats) []string {
	var problems []string

	want := Aggregate(tasks, stats)
	if want.TotalCoins != stats.TotalCoins {
		problems = append(problems, fmt.Sprintf("totalCoins is %d, verified tasks sum to %d", stats.TotalCoins, want.TotalCoins))
	}
	if want.TasksCompleted != stats.TasksCompleted {
		problems = append(problems, fmt.Sprintf("tasksCompleted is %d, %d tasks are verified", stats.TasksCompleted, want.TasksCompleted))
	}
	if want.Level != stats.Level {
		problems = append(problems, fmt.Sprintf("level is %d, expected %d", stats.Level, want.Level))
	}

	for _, t := range tasks {
		if t.Completed != (t.VerificationStatus == StatusVerified) {
			problems = append(problems, fmt.Sprintf("task %s: completed=%t with status %s", t.ID, t.Completed, t.VerificationStatus))
		}
	}
	return problems
}
