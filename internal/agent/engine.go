package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/memory"
	"github.com/onlinex/onlinex/internal/stats"
)

const summarizeInstruction = "Summarize the conversation so far in a concise paragraph. " +
	"Focus on the topics discussed and anything learned about the user. " +
	"Keep it under 100 words."

const archiveNote = "Earlier messages were summarized and archived."

// ChatEngine drives one exchange per call: append the user message and the
// generated reply to short-term history, then compact the history once it
// crosses the configured threshold. A per-session mutex makes the
// append-generate-compact sequence single-writer, so a threshold crossing
// archives at most once.
type ChatEngine struct {
	log       *log.Logger
	db        database.OnlinexRepository
	store     memory.HistoryStore
	gen       Generator
	stats     stats.StatsProvider
	threshold int
	keep      int

	mu       sync.Mutex
	sessions map[string]*sessionLock
}

// sessionLock is refcounted so the sessions map only holds entries for
// exchanges in flight; the last holder to release removes the entry.
type sessionLock struct {
	sync.Mutex
	refs int
}

func NewChatEngine(logger *log.Logger, db database.OnlinexRepository, store memory.HistoryStore,
	gen Generator, st stats.StatsProvider, threshold, keep int) (*ChatEngine, error) {
	if threshold <= 0 || keep < 0 || keep >= threshold {
		return nil, fmt.Errorf("invalid compaction bounds: threshold %d, keep %d", threshold, keep)
	}

	return &ChatEngine{
		log:       logger,
		db:        db,
		store:     store,
		gen:       gen,
		stats:     st,
		threshold: threshold,
		keep:      keep,
		sessions:  make(map[string]*sessionLock),
	}, nil
}

func (e *ChatEngine) acquireSession(sessionId string) *sessionLock {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.sessions[sessionId]
	if !ok {
		lock = &sessionLock{}
		e.sessions[sessionId] = lock
	}
	lock.refs++
	return lock
}

func (e *ChatEngine) releaseSession(sessionId string, lock *sessionLock) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(e.sessions, sessionId)
	}
}

// Respond runs one exchange for the conversation. When compaction fails the
// reply is still returned alongside the error: the exchange succeeded, the
// history is untouched, and the caller decides how to surface the failure.
func (e *ChatEngine) Respond(ctx context.Context, conv database.Conversation, input string) (string, error) {
	lock := e.acquireSession(conv.ExternalId)
	lock.Lock()
	defer func() {
		lock.Unlock()
		e.releaseSession(conv.ExternalId, lock)
	}()

	profile := LookupProfile(conv.AgentName)

	history, err := e.store.History(ctx, conv.ExternalId)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	summaries, err := e.db.GetMemorySummaries(conv.Id)
	if err != nil {
		return "", fmt.Errorf("load summaries: %w", err)
	}

	messages := make([]Message, 0, len(history)+len(summaries)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: profile.Prompt})
	for _, s := range summaries {
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: "Summary of earlier conversation: " + s.Summary,
		})
	}
	for _, entry := range history {
		messages = append(messages, Message{Role: entry.Role, Content: entry.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: input})

	reply, err := e.gen.Generate(ctx, profile, messages)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	now := time.Now().UTC()
	length, err := e.store.Append(ctx, conv.ExternalId,
		memory.Entry{Role: RoleUser, Content: input, Timestamp: now},
		memory.Entry{Role: RoleAssistant, Content: reply, Timestamp: now},
	)
	if err != nil {
		return "", fmt.Errorf("append history: %w", err)
	}

	if length >= int64(e.threshold) {
		if err := e.compact(ctx, conv, profile); err != nil {
			return reply, fmt.Errorf("compact history: %w", err)
		}
	}

	return reply, nil
}

// compact summarizes the oldest history window, persists the summary, and
// only then trims the window off the short-term log. Any failure before the
// trim leaves the history exactly as it was.
func (e *ChatEngine) compact(ctx context.Context, conv database.Conversation, profile Profile) error {
	history, err := e.store.History(ctx, conv.ExternalId)
	if err != nil {
		return err
	}
	if len(history) <= e.keep {
		return nil
	}

	window := history[:len(history)-e.keep]
	messages := make([]Message, 0, len(window)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: summarizeInstruction})
	for _, entry := range window {
		messages = append(messages, Message{Role: entry.Role, Content: entry.Content})
	}

	summary, err := e.gen.Generate(ctx, profile, messages)
	if err != nil {
		return fmt.Errorf("summarize window: %w", err)
	}

	if _, err := e.db.CreateMemorySummary(conv.Id, summary); err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}

	if err := e.store.TrimOldest(ctx, conv.ExternalId, len(window)); err != nil {
		return fmt.Errorf("trim summarized window: %w", err)
	}

	if _, err := e.store.Append(ctx, conv.ExternalId, memory.Entry{
		Role:      RoleSystem,
		Content:   archiveNote,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		// the archive happened; a missing continuity note is not worth
		// failing the exchange
		e.log.Printf("append archive note for session %q: %v", conv.ExternalId, err)
	}

	e.stats.Incr(stats.CompactionsRun)
	e.log.Printf("compacted %d history entries for session %q", len(window), conv.ExternalId)

	return nil
}
