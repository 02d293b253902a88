package taskname

const (
	// Rewards tasks
	RewardsTaskVerified = "rewards:task_verified"
)
