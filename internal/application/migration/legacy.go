// Package migration imports state written by earlier docsync releases into the
// current per-profile store.
package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/docsync/internal/domain/profile"
)

// Keys of the browser-local state document.
const (
	KeyFlatWatched = "docsync_watched_files"
	KeyWatchedMap  = "docsync_watched_files_map"
	KeyHistoryMap  = "docsync_sync_history_map"
	KeyConfig      = "docsync_config_v3"
)

// LegacyConfig is the former configuration object.
type LegacyConfig struct {
	GoogleClientID  string          `json:"googleClientId"`
	GoogleAPIKey    string          `json:"googleApiKey"`
	GeminiAPIKey    string          `json:"geminiApiKey"`
	Profiles        []LegacyProfile `json:"profiles"`
	ActiveProfileID string          `json:"activeProfileId"`
	AutoSync        bool            `json:"autoSync"`
	SyncInterval    int             `json:"syncInterval"`
}

// LegacyProfile is a destination profile in the former configuration.
type LegacyProfile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DifyDatasetID string `json:"difyDatasetId"`
	DifyBaseURL   string `json:"difyBaseUrl"`
	DifyAPIKey    string `json:"difyApiKey"`
}

// Profile converts to the domain type.
func (p LegacyProfile) Profile() profile.Profile {
	return profile.Profile{
		ID:        p.ID,
		Name:      p.Name,
		DatasetID: p.DifyDatasetID,
		BaseURL:   p.DifyBaseURL,
		APIKey:    p.DifyAPIKey,
	}
}

// LegacyState is everything recovered from a legacy document.
type LegacyState struct {
	// FlatWatched is the pre-profile watch list. It has no owner until attributed.
	FlatWatched []string
	Watched     map[string][]string
	History     map[string]map[string]time.Time
	Config      *LegacyConfig
}

// Empty reports whether nothing was recovered.
func (s LegacyState) Empty() bool {
	return len(s.FlatWatched) == 0 && len(s.Watched) == 0 && len(s.History) == 0 && s.Config == nil
}

// ParseLegacy decodes a legacy state document. It never fails: parts that cannot
// be read are skipped and reported as warnings. A top-level array is taken as
// the flat pre-profile watch list.
func ParseLegacy(data []byte) (LegacyState, []string) {
	state := LegacyState{
		Watched: make(map[string][]string),
		History: make(map[string]map[string]time.Time),
	}
	var warnings []string

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return state, nil
	}

	if trimmed[0] == '[' {
		ids, err := parseIDList(trimmed)
		if err != nil {
			return state, []string{fmt.Sprintf("flat watch list unreadable: %v", err)}
		}
		state.FlatWatched = ids
		return state, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return state, []string{fmt.Sprintf("legacy state is not a JSON object: %v", err)}
	}

	if raw, ok := doc[KeyFlatWatched]; ok {
		ids, err := parseIDList(unquote(raw))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s skipped: %v", KeyFlatWatched, err))
		} else {
			state.FlatWatched = ids
		}
	}

	if raw, ok := doc[KeyWatchedMap]; ok {
		var m map[string][]string
		if err := json.Unmarshal(unquote(raw), &m); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s skipped: %v", KeyWatchedMap, err))
		} else {
			for profileID, ids := range m {
				if profileID == "" {
					continue
				}
				state.Watched[profileID] = dedupe(ids)
			}
		}
	}

	if raw, ok := doc[KeyHistoryMap]; ok {
		var m map[string]map[string]json.RawMessage
		if err := json.Unmarshal(unquote(raw), &m); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s skipped: %v", KeyHistoryMap, err))
		} else {
			for profileID, entries := range m {
				if profileID == "" {
					continue
				}
				history := make(map[string]time.Time, len(entries))
				for fileID, v := range entries {
					at, err := parseTimestamp(v)
					if err != nil || fileID == "" {
						warnings = append(warnings, fmt.Sprintf("history %s/%s skipped: unreadable timestamp %s", profileID, fileID, string(v)))
						continue
					}
					history[fileID] = at
				}
				if len(history) > 0 {
					state.History[profileID] = history
				}
			}
		}
	}

	if raw, ok := doc[KeyConfig]; ok {
		var cfg LegacyConfig
		if err := json.Unmarshal(unquote(raw), &cfg); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s skipped: %v", KeyConfig, err))
		} else {
			state.Config = &cfg
		}
	}

	return state, warnings
}

// unquote turns a JSON string holding JSON (as stored by localStorage dumps) into
// the inner document. Anything else is returned unchanged.
func unquote(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return trimmed
	}
	return []byte(inner)
}

func parseIDList(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// parseTimestamp accepts ISO-8601 strings and epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %s", string(raw))
}
