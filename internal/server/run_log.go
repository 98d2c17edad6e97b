package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agriagent/apps/backend/internal/chat"
)

const (
	runOutcomeDelivered = "delivered"
	runOutcomeRejected  = "rejected"
	runOutcomeCancelled = "cancelled"
	runOutcomeFailed    = "failed"
)

// RunLogEntry is the metadata kept for one chat request. Message text and
// answers are never stored.
type RunLogEntry struct {
	RequestID    string
	Subject      string
	Language     string
	LanguageHint string
	Stages       []string
	Degraded     []string
	Elapsed      time.Duration
	Outcome      string
}

type RunLogger interface {
	Record(ctx context.Context, entry RunLogEntry) error
}

type dbQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type RunLogStore struct {
	db dbQuerier
}

func NewRunLogStore(pool *pgxpool.Pool) *RunLogStore {
	return &RunLogStore{db: pool}
}

func (s *RunLogStore) Record(ctx context.Context, entry RunLogEntry) error {
	if s == nil || s.db == nil {
		return errors.New("run log store is not configured")
	}
	var subject any
	if entry.Subject != "" {
		subject = entry.Subject
	}
	var hint any
	if entry.LanguageHint != "" {
		hint = entry.LanguageHint
	}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO "ChatRunLog"
		   (id, "requestId", subject, language, "languageHint", stages, degraded, "elapsedMs", outcome, "createdAt")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
		uuid.NewString(),
		entry.RequestID,
		subject,
		entry.Language,
		hint,
		nonNilStrings(entry.Stages),
		nonNilStrings(entry.Degraded),
		entry.Elapsed.Milliseconds(),
		entry.Outcome,
	)
	return err
}

// FindByRequestID returns the most recent entry for a request id, or
// pgx.ErrNoRows.
func (s *RunLogStore) FindByRequestID(ctx context.Context, requestID string) (RunLogEntry, error) {
	var (
		entry     RunLogEntry
		subject   *string
		hint      *string
		elapsedMS int64
	)
	err := s.db.QueryRow(
		ctx,
		`SELECT "requestId", subject, language, "languageHint", stages, degraded, "elapsedMs", outcome
		 FROM "ChatRunLog"
		 WHERE "requestId" = $1
		 ORDER BY "createdAt" DESC
		 LIMIT 1`,
		requestID,
	).Scan(&entry.RequestID, &subject, &entry.Language, &hint, &entry.Stages, &entry.Degraded, &elapsedMS, &entry.Outcome)
	if err != nil {
		return RunLogEntry{}, err
	}
	if subject != nil {
		entry.Subject = *subject
	}
	if hint != nil {
		entry.LanguageHint = *hint
	}
	entry.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return entry, nil
}

func newRunLogEntry(requestID, subject, hint string, trace chat.Trace, outcome string) RunLogEntry {
	stages := make([]string, 0, len(trace.Stages))
	for _, stage := range trace.Stages {
		stages = append(stages, string(stage))
	}
	return RunLogEntry{
		RequestID:    requestID,
		Subject:      subject,
		Language:     trace.Language,
		LanguageHint: hint,
		Stages:       stages,
		Degraded:     append([]string(nil), trace.Degraded...),
		Elapsed:      trace.Elapsed,
		Outcome:      outcome,
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
