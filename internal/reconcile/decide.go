package reconcile

import (
	"sort"
	"time"

	"basegraph.app/trackersync/internal/model"
)

type side struct {
	content  map[string]any
	hash     string
	modified *time.Time
}

type decision struct {
	applyRemote bool
	conflict    *model.Conflict
}

// decide compares both sides against the hash recorded at the last sync. A
// conflict is when both moved away from it and ended up different.
func decide(state *model.SyncState, local, remote side, strategy model.ResolutionStrategy, now time.Time) decision {
	if local.hash == remote.hash {
		return decision{}
	}

	localChanged := state.ContentHash != "" && local.hash != state.ContentHash
	remoteChanged := state.ContentHash == "" || remote.hash != state.ContentHash

	if !localChanged {
		return decision{applyRemote: true}
	}
	if !remoteChanged {
		return decision{}
	}

	conflict := &model.Conflict{
		DetectedAt:     now,
		LocalModified:  local.modified,
		RemoteModified: remote.modified,
		Local:          local.content,
		Remote:         remote.content,
		Fields:         diffFields(local.content, remote.content),
		LocalHash:      local.hash,
		RemoteHash:     remote.hash,
	}

	applyRemote := false
	switch strategy {
	case model.ResolutionStrategyJiraWins:
		applyRemote = true
	case model.ResolutionStrategyAuto:
		applyRemote = newer(remote.modified, local.modified)
	}
	if strategy != model.ResolutionStrategyManual {
		conflict.AppliedSide = "local"
		if applyRemote {
			conflict.AppliedSide = "remote"
		}
	}

	return decision{applyRemote: applyRemote, conflict: conflict}
}

// newer reports whether a is strictly after b. An unknown remote time loses,
// an unknown local time loses to any known remote time.
func newer(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

func diffFields(local, remote map[string]any) []string {
	seen := make(map[string]struct{})
	var fields []string
	for k, lv := range local {
		seen[k] = struct{}{}
		if rv, ok := remote[k]; !ok || !equalValue(lv, rv) {
			fields = append(fields, k)
		}
	}
	for k := range remote {
		if _, ok := seen[k]; !ok {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

func equalValue(a, b any) bool {
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
