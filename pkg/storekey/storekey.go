package storekey

import "fmt"

// Rewards record keys, namespaced per profile.
const (
	RewardsPrefix = "rewards"
	StatsRecord   = "stats"
	TasksRecord   = "tasks"
	LedgerRecord  = "ledger"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// ProfileKey returns "rewards:{profile}:{record}".
func ProfileKey(profile, record string) string {
	return NamespaceKey(NamespaceKey(RewardsPrefix, profile), record)
}

// BuildStatsKey returns "rewards:{profile}:stats"
func BuildStatsKey(profile string) string {
	return ProfileKey(profile, StatsRecord)
}

// BuildTasksKey returns "rewards:{profile}:tasks"
func BuildTasksKey(profile string) string {
	return ProfileKey(profile, TasksRecord)
}

// BuildLedgerKey returns "rewards:{profile}:ledger"
func BuildLedgerKey(profile string) string {
	return ProfileKey(profile, LedgerRecord)
}
