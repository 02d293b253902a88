package rewards

import (
	"fmt"
	"net/url"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/errutil"
)

// DefaultCatalog is used when the configuration carries no CATALOG.
func DefaultCatalog() []Definition {
	return []Definition{
		{
			ID:          "tiktok_follow",
			Platform:    PlatformTikTok,
			Type:        ActionFollow,
			Title:       "Follow us on TikTok",
			Description: "Follow the studio account and come back to claim",
			URL:         "https://www.tiktok.com/@miniapp.studio",
			Reward:      100,
			MinimumTime: 10,
			TimeLimit:   30,
		},
		{
			ID:          "tiktok_like",
			Platform:    PlatformTikTok,
			Type:        ActionLike,
			Title:       "Like our latest video",
			Description: "Open the video and tap like",
			URL:         "https://www.tiktok.com/@miniapp.studio/video/7301234567890123456",
			Reward:      50,
			MinimumTime: 5,
			TimeLimit:   20,
		},
		{
			ID:          "tiktok_share",
			Platform:    PlatformTikTok,
			Type:        ActionShare,
			Title:       "Share our showcase",
			Description: "Share the showcase video with a friend",
			URL:         "https://www.tiktok.com/@miniapp.studio/video/7301234567890123457",
			Reward:      150,
			MinimumTime: 15,
			TimeLimit:   60,
		},
		{
			ID:          "instagram_follow",
			Platform:    PlatformInstagram,
			Type:        ActionFollow,
			Title:       "Follow us on Instagram",
			Description: "Follow the studio profile",
			URL:         "https://www.instagram.com/miniapp.studio/",
			Reward:      100,
			MinimumTime: 10,
			TimeLimit:   30,
		},
		{
			ID:          "instagram_like",
			Platform:    PlatformInstagram,
			Type:        ActionLike,
			Title:       "Like our latest post",
			Description: "Double tap the pinned post",
			URL:         "https://www.instagram.com/p/C0miniapp01/",
			Reward:      50,
			MinimumTime: 5,
			TimeLimit:   20,
		},
		{
			ID:          "instagram_comment",
			Platform:    PlatformInstagram,
			Type:        ActionComment,
			Title:       "Comment on our reel",
			Description: "Tell us which demo store you liked most",
			URL:         "https://www.instagram.com/reel/C0miniapp02/",
			Reward:      75,
			MinimumTime: 20,
			TimeLimit:   90,
		},
	}
}

// CatalogFromConfig converts configured definitions, falling back to the
// default catalog when none are configured.
func CatalogFromConfig(defs []config.TaskDefinition) []Definition {
	if len(defs) == 0 {
		return DefaultCatalog()
	}

	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, Definition{
			ID:          d.ID,
			Platform:    Platform(d.Platform),
			Type:        ActionType(d.Type),
			Title:       d.Title,
			Description: d.Description,
			URL:         d.URL,
			Reward:      d.Reward,
			MinimumTime: d.MinimumTime,
			TimeLimit:   d.TimeLimit,
		})
	}
	return out
}

func ValidateCatalog(defs []Definition) error {
	var details []errutil.Detail
	add := func(i int, field, msg string) {
		details = append(details, errutil.Detail{Field: fmt.Sprintf("catalog[%d].%s", i, field), Message: msg})
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		switch {
		case d.ID == "":
			add(i, "id", "must not be empty")
		case seen[d.ID]:
			add(i, "id", fmt.Sprintf("duplicate id %q", d.ID))
		}
		seen[d.ID] = true

		if !d.Platform.Valid() {
			add(i, "platform", fmt.Sprintf("unknown platform %q", d.Platform))
		}
		if !d.Type.Valid() {
			add(i, "type", fmt.Sprintf("unknown action type %q", d.Type))
		}
		if d.Reward <= 0 {
			add(i, "reward", "must be positive")
		}
		if d.MinimumTime < 0 {
			add(i, "minimumTime", "must not be negative")
		}
		if d.TimeLimit < 0 {
			add(i, "timeLimit", "must not be negative")
		}
		if u, err := url.Parse(d.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(i, "url", "must be an absolute http(s) URL")
		}
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid task catalog", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Merge builds the task list from the catalog and persisted state. Static
// attributes come from the catalog, runtime fields from the persisted task
// with the same id. Persisted tasks missing from the catalog are kept after
// the catalog entries so their rewards still count.
func Merge(defs []Definition, persisted []Task) []Task {
	byID := make(map[string]Task, len(persisted))
	for _, t := range persisted {
		byID[t.ID] = t
	}

	out := make([]Task, 0, len(defs)+len(persisted))
	used := make(map[string]bool, len(defs))
	for _, d := range defs {
		t := NewTask(d)
		if p, ok := byID[d.ID]; ok {
			p = p.clone()
			t.Completed = p.Completed
			t.StartTime = p.StartTime
			t.Attempts = p.Attempts
			t.LastAttempt = p.LastAttempt
			t.LastDecision = p.LastDecision
			if p.VerificationStatus != "" {
				t.VerificationStatus = p.VerificationStatus
			}
		}
		used[d.ID] = true
		out = append(out, t)
	}

	for _, p := range persisted {
		if used[p.ID] {
			continue
		}
		used[p.ID] = true
		out = append(out, p.clone())
	}
	return out
}
