package mapper

import (
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/model"
)

// SprintState maps a Jira sprint state. ok is false for missing or unknown states.
func SprintState(state *string) (model.SprintState, bool) {
	if state == nil {
		return "", false
	}
	switch s := model.SprintState(*state); s {
	case model.SprintStateFuture, model.SprintStateActive, model.SprintStateClosed:
		return s, true
	}
	return "", false
}

// Sprint builds the local record for a Jira sprint. prev is the stored row,
// if any, and supplies the state when the payload carries none.
func Sprint(sp *jira.Sprint, prev *model.Sprint) model.Sprint {
	out := model.Sprint{
		JiraID:       sp.ID,
		Goal:         sp.Goal,
		BoardJiraID:  sp.OriginBoardID,
		StartDate:    sp.StartDate,
		EndDate:      sp.EndDate,
		CompleteDate: sp.CompleteDate,
		State:        model.SprintStateFuture,
	}
	if sp.Name != nil {
		out.Name = *sp.Name
	}
	if prev != nil {
		out.ID = prev.ID
		out.State = prev.State
	}
	if state, ok := SprintState(sp.State); ok {
		out.State = state
	}
	return out
}

func SprintContent(sp *model.Sprint) map[string]any {
	c := map[string]any{
		"name":  sp.Name,
		"state": sp.State,
	}
	if sp.Goal != nil {
		c["goal"] = *sp.Goal
	}
	if sp.BoardJiraID != nil {
		c["board"] = *sp.BoardJiraID
	}
	if sp.StartDate != nil {
		c["start"] = sp.StartDate.UTC()
	}
	if sp.EndDate != nil {
		c["end"] = sp.EndDate.UTC()
	}
	if sp.CompleteDate != nil {
		c["complete"] = sp.CompleteDate.UTC()
	}
	return c
}

func Board(b *jira.Board) model.Board {
	out := model.Board{
		JiraID:     b.ID,
		ProjectKey: b.ProjectKey,
		Active:     true,
	}
	if b.Name != nil {
		out.Name = *b.Name
	}
	if b.Type != nil {
		out.BoardType = *b.Type
	}
	return out
}
