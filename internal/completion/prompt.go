package completion

import (
	"encoding/json"
	"strings"
)

const (
	// MaxContentChars is the budget for the current content fragment.
	MaxContentChars = 4000
	// SummaryHistoryTurns and AnalyzeTurns bound how much prior conversation is replayed.
	SummaryHistoryTurns = 30
	AnalyzeTurns        = 10
)

const (
	summarizePersona = "You maintain a running summary of a dream interpretation session. " +
		"Merge the previous summary, the recent conversation and the new passage into one " +
		"concise plain-text summary of at most a few sentences. Reply with the summary only."

	analyzePersona = "You are a thoughtful dream analyst. Interpret the passage the dreamer " +
		"shares, drawing on symbolism, emotion and the context of the whole dream. Be warm " +
		"and specific, and avoid medical or diagnostic claims."

	findSimilarPersona = "You recommend existing works of art, literature, film or music that " +
		"resonate with a dream. Reply with a JSON array only, at most 5 items, each shaped " +
		`{"title": string, "type": string, "author": string, "desc": string, "value": string}` +
		". No prose and no code fences."
)

// Turn is one prior conversational exchange supplied by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SummarizeRequest struct {
	History         []Turn `json:"history"`
	BlockText       string `json:"blockText"`
	ExistingSummary string `json:"existingSummary"`
}

type AnalyzeRequest struct {
	BlockText         string `json:"blockText"`
	LastTurns         []Turn `json:"lastTurns"`
	RollingSummary    string `json:"rollingSummary"`
	ExtraSystemPrompt string `json:"extraSystemPrompt"`
	DreamSummary      string `json:"dreamSummary"`
}

type FindSimilarRequest struct {
	DreamText                 string          `json:"dreamText"`
	GlobalFinalInterpretation string          `json:"globalFinalInterpretation"`
	BlockInterpretations      json.RawMessage `json:"blockInterpretations"`
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func lastTurns(turns []Turn, n int) []Message {
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := "user"
		if t.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, Message{Role: role, Content: Truncate(t.Content, MaxContentChars)})
	}
	return out
}

func buildSummarize(req SummarizeRequest) []Message {
	msgs := []Message{{Role: "system", Content: summarizePersona}}
	if s := strings.TrimSpace(req.ExistingSummary); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: "Previous summary:\n" + s})
	}
	msgs = append(msgs, lastTurns(req.History, SummaryHistoryTurns)...)
	if s := strings.TrimSpace(req.BlockText); s != "" {
		msgs = append(msgs, Message{Role: "user", Content: "New passage:\n" + Truncate(s, MaxContentChars)})
	}
	return msgs
}

func buildAnalyze(req AnalyzeRequest) []Message {
	msgs := []Message{{Role: "system", Content: analyzePersona}}
	if s := strings.TrimSpace(req.ExtraSystemPrompt); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: s})
	}
	if s := strings.TrimSpace(req.DreamSummary); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: "Summary of the whole dream:\n" + s})
	}
	if s := strings.TrimSpace(req.RollingSummary); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: "Conversation so far:\n" + s})
	}
	msgs = append(msgs, lastTurns(req.LastTurns, AnalyzeTurns)...)
	msgs = append(msgs, Message{Role: "user", Content: Truncate(req.BlockText, MaxContentChars)})
	return msgs
}

func buildFindSimilar(req FindSimilarRequest) []Message {
	var b strings.Builder
	b.WriteString("Dream:\n")
	b.WriteString(Truncate(req.DreamText, MaxContentChars))
	if s := strings.TrimSpace(req.GlobalFinalInterpretation); s != "" {
		b.WriteString("\n\nOverall interpretation:\n")
		b.WriteString(Truncate(s, MaxContentChars))
	}
	if s := renderInterpretations(req.BlockInterpretations); s != "" {
		b.WriteString("\n\nPassage interpretations:\n")
		b.WriteString(Truncate(s, MaxContentChars))
	}
	return []Message{
		{Role: "system", Content: findSimilarPersona},
		{Role: "user", Content: b.String()},
	}
}

// renderInterpretations accepts either a list of strings or any other JSON value.
func renderInterpretations(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, "- "+s)
			}
		}
		return strings.Join(parts, "\n")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
