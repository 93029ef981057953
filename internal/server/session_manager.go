package server

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/michaelbrown/devbot/internal/assistant"
	"github.com/michaelbrown/devbot/internal/config"
	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/llm"
	"github.com/michaelbrown/devbot/internal/tools"
)

// ActiveSession tracks an in-memory assistant for a session.
type ActiveSession struct {
	Assistant *assistant.Assistant
	Cancel    context.CancelFunc // cancels in-flight RunStreaming
	mu        sync.Mutex         // one message at a time per session
}

// SessionManager tracks which sessions have an active Assistant in memory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ActiveSession),
	}
}

// Get returns an active session if it exists.
func (sm *SessionManager) Get(sessionID string) (*ActiveSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sessionID]
	return as, ok
}

// GetOrCreate returns an existing active session or creates a new one.
// This encapsulates the full assistant initialization pattern from chat.go.
func (sm *SessionManager) GetOrCreate(
	ctx context.Context,
	sess *history.Session,
	cfg *config.Config,
	store history.Store,
	dispatcher *dispatch.Dispatcher,
	registry *tools.Registry,
) (*ActiveSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if as, ok := sm.sessions[sess.ID]; ok {
		return as, nil
	}

	// Resolve provider
	providerName := sess.Provider
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	provider, err := cfg.Provider(providerName)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	// Resolve model
	model := sess.Model
	if model == "" {
		model = provider.Models["default"]
	}

	// Load profile if specified
	var profile *assistant.Profile
	if sess.Profile != "" {
		profilePath := filepath.Join(cfg.Assistant.ProfilesDir, sess.Profile+".yaml")
		profile, err = assistant.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
	}

	maxIter := cfg.Assistant.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
	}

	// Create LLM client and assistant
	client := llm.NewClient(provider.BaseURL, provider.APIKey, model)
	a := assistant.New(client, dispatcher, registry, maxIter)
	a.SetMaxTokens(cfg.Assistant.ContextMaxTokens)

	// Persist every sandboxed execution to the run log
	a.OnRunRecord = func(rec *dispatch.Record) {
		run := &history.Run{
			ID:             rec.ID,
			Language:       rec.Language,
			Status:         string(rec.Status),
			ExitCode:       rec.ExitCode,
			Stdout:         rec.Stdout,
			Stderr:         rec.Stderr,
			TimedOut:       rec.TimedOut,
			Truncated:      rec.Truncated,
			DurationMillis: rec.DurationMillis,
			CreatedAt:      rec.CreatedAt,
		}
		if err := store.AppendRun(context.Background(), run); err != nil {
			log.Printf("failed to append run %s: %v", rec.ID, err)
		}
	}

	// Set up utility LLM if configured
	if utilityModel, ok := provider.Models["utility"]; ok && utilityModel != "" {
		utilityClient := llm.NewClient(provider.BaseURL, provider.APIKey, utilityModel)
		a.SetUtilityLLM(utilityClient)
	}

	// Apply profile overrides
	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	// Load existing history if any
	messages, err := store.LoadMessages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) > 0 {
		a.SetHistory(messages)
	}

	as := &ActiveSession{
		Assistant: a,
	}
	sm.sessions[sess.ID] = as
	return as, nil
}

// Remove removes an active session and cancels any in-flight work.
func (sm *SessionManager) Remove(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if as, ok := sm.sessions[sessionID]; ok {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, sessionID)
	}
}

// CloseAll cancels all active sessions.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, as := range sm.sessions {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, id)
	}
}
