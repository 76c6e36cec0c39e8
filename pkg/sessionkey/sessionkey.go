// Package sessionkey canonicalizes (channel, chatId, threadId) triples into
// the stable string keys used throughout tinycrab to group sessions and bus
// subscriptions.
package sessionkey

import (
	"fmt"
	"strings"
)

const threadMarker = ":thread:"

// Parts holds the decomposed components of a session key.
type Parts struct {
	Channel  string
	ChatID   string
	ThreadID string
}

// normalize lowercases s and replaces every character outside [a-z0-9_-]
// with a hyphen.
func normalize(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			b[i] = c
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}

// Build canonicalizes a (channel, chatId, threadId?) triple into a key of
// the form "<channel>:<chatId>" or "<channel>:<chatId>:thread:<threadId>".
func Build(channel, chatID, threadID string) (string, error) {
	channel = normalize(channel)
	chatID = normalize(chatID)
	if channel == "" || chatID == "" {
		return "", fmt.Errorf("sessionkey: channel and chatId are required")
	}
	if threadID == "" {
		return fmt.Sprintf("%s:%s", channel, chatID), nil
	}
	threadID = normalize(threadID)
	if threadID == "" {
		return "", fmt.Errorf("sessionkey: threadId is required when provided")
	}
	return fmt.Sprintf("%s:%s%s%s", channel, chatID, threadMarker, threadID), nil
}

// MustBuild panics on build failure; useful for constant-key construction.
func MustBuild(channel, chatID, threadID string) string {
	key, err := Build(channel, chatID, threadID)
	if err != nil {
		panic(err)
	}
	return key
}

// Parse splits a key back into its components. Malformed or
// empty-component keys return an error.
func Parse(key string) (Parts, error) {
	rest := key
	threadID := ""
	if idx := strings.Index(key, threadMarker); idx >= 0 {
		rest = key[:idx]
		threadID = key[idx+len(threadMarker):]
		if threadID == "" {
			return Parts{}, fmt.Errorf("sessionkey: malformed key %q: empty threadId", key)
		}
	}

	idx := strings.Index(rest, ":")
	if idx < 0 {
		return Parts{}, fmt.Errorf("sessionkey: malformed key %q: missing channel separator", key)
	}
	channel := rest[:idx]
	chatID := rest[idx+1:]
	if channel == "" || chatID == "" {
		return Parts{}, fmt.Errorf("sessionkey: malformed key %q: empty component", key)
	}

	return Parts{Channel: channel, ChatID: chatID, ThreadID: threadID}, nil
}

// ParentOf returns the base key with the thread component stripped, or
// ("", false) if key has no thread component.
func ParentOf(key string) (string, bool) {
	idx := strings.Index(key, threadMarker)
	if idx < 0 {
		return "", false
	}
	return key[:idx], true
}
