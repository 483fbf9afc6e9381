package example

type ProcessingStatus string

const (
	ProcessingStatusPending ProcessingStatus = "pending"
	ProcessingStatusFailed  ProcessingStatus = "failed"
)

type ResolutionStrategy string

const (
	ResolutionStrategyManual ResolutionStrategy = "manual"
)

// IssueKey has no constants, so it is not an enum.
type IssueKey string

type WebhookEvent struct {
	ProcessingStatus ProcessingStatus
	IssueKey         IssueKey
}

type SyncState struct {
	ResolutionStrategy ResolutionStrategy
}

func bad() {
	e := &WebhookEvent{}
	e.ProcessingStatus = "done" // want "enum field ProcessingStatus assigned string literal"

	s := SyncState{ResolutionStrategy: "remote_wins"} // want "enum field ResolutionStrategy assigned string literal"
	_ = s
}

func good() {
	e := &WebhookEvent{}
	e.ProcessingStatus = ProcessingStatusFailed // OK: using constant
	e.IssueKey = "PROJ-1"                       // OK: not an enum

	s := SyncState{ResolutionStrategy: ResolutionStrategyManual}
	_ = s
}

func alsoGood(raw string) {
	// OK: conversion, not literal
	status := ProcessingStatus(raw)
	e := &WebhookEvent{ProcessingStatus: status}
	_ = e
}
