package pack

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// migrateV0 rewrites a legacy (unversioned) document into the version 1
// shape in place. Legacy keys that have a version 1 equivalent are consumed;
// anything else is left for the unknown-field pass to preserve.
func migrateV0(kind Kind, raw map[string]json.RawMessage) error {
	var err error
	switch kind {
	case KindSummary:
		err = migrateSummaryV0(raw)
	case KindFiles:
		err = migrateFilesV0(raw)
	case KindGraph:
		err = migrateGraphV0(raw)
	}
	if err != nil {
		return err
	}
	raw["schema_version"] = json.RawMessage(fmt.Sprint(SchemaVersion))
	return nil
}

// Legacy files documents list entries either as bare strings or as
// {"name", "size", "hash"} objects.
func migrateFilesV0(raw map[string]json.RawMessage) error {
	body, ok := raw["files"]
	if !ok {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("files: %w", err)
	}

	files := make([]FileEntry, 0, len(entries))
	for i, e := range entries {
		var name string
		if err := json.Unmarshal(e, &name); err == nil {
			files = append(files, FileEntry{Path: name})
			continue
		}
		var obj struct {
			Path           string   `json:"path"`
			Name           string   `json:"name"`
			Size           *float64 `json:"size"`
			SizeHint       *float64 `json:"size_hint"`
			ComplexityHint *float64 `json:"complexity_hint"`
		}
		if err := json.Unmarshal(e, &obj); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
		f := FileEntry{Path: obj.Path}
		if f.Path == "" {
			f.Path = obj.Name
		}
		switch {
		case obj.SizeHint != nil:
			f.SizeHint = int64(*obj.SizeHint)
		case obj.Size != nil:
			f.SizeHint = int64(*obj.Size)
		}
		if obj.ComplexityHint != nil {
			f.ComplexityHint = *obj.ComplexityHint
		}
		files = append(files, f)
	}

	data, err := json.Marshal(files)
	if err != nil {
		return err
	}
	raw["files"] = data
	return nil
}

// Legacy graphs used connected_features for related features and
// related_nodes for the file adjacency map.
func migrateGraphV0(raw map[string]json.RawMessage) error {
	if v, ok := raw["connected_features"]; ok {
		if _, exists := raw["related_features"]; !exists {
			raw["related_features"] = v
		}
		delete(raw, "connected_features")
	}
	if v, ok := raw["related_nodes"]; ok {
		if _, exists := raw["related_files"]; !exists {
			raw["related_files"] = v
		}
		delete(raw, "related_nodes")
	}
	return nil
}

// Legacy summaries are agent run records: unix-second float timestamps,
// pr_url, pess_score, changes_made, change_required and template_name.
func migrateSummaryV0(raw map[string]json.RawMessage) error {
	var legacy struct {
		TicketID            string   `json:"ticket_id"`
		PRURL               string   `json:"pr_url"`
		PESSScore           *float64 `json:"pess_score"`
		CompletionTimestamp *float64 `json:"completion_timestamp"`
		Status              string   `json:"status"`
		ChangesMade         string   `json:"changes_made"`
		ChangeRequired      string   `json:"change_required"`
		TemplateName        string   `json:"template_name"`
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &legacy); err != nil {
		return err
	}

	set := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw[key] = data
		return nil
	}

	for _, key := range []string{"created_at", "updated_at"} {
		if t, ok, err := legacyTime(raw[key]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		} else if ok {
			if err := set(key, t); err != nil {
				return err
			}
		}
	}

	if legacy.TicketID != "" {
		if _, ok := raw["uow_id"]; !ok {
			if err := set("uow_id", legacy.TicketID); err != nil {
				return err
			}
		}
	}
	if legacy.ChangesMade != "" {
		if _, ok := raw["summary"]; !ok {
			if err := set("summary", legacy.ChangesMade); err != nil {
				return err
			}
		}
	}
	if legacy.ChangeRequired != "" {
		if _, ok := raw["requirement"]; !ok {
			if err := set("requirement", legacy.ChangeRequired); err != nil {
				return err
			}
		}
	}
	if legacy.TemplateName != "" {
		if _, ok := raw["category"]; !ok {
			if err := set("category", legacy.TemplateName); err != nil {
				return err
			}
		}
	}

	if _, ok := raw["outcome"]; !ok && (legacy.PRURL != "" || legacy.PESSScore != nil || legacy.CompletionTimestamp != nil) {
		out := Outcome{ExternalRef: legacy.PRURL, Status: legacy.Status}
		if legacy.PESSScore != nil {
			score := *legacy.PESSScore
			// Some legacy writers stored percentages.
			if score > 1 && score <= 100 {
				score /= 100
			}
			out.EffectivenessScore = &score
		}
		if legacy.CompletionTimestamp != nil {
			t := unixSeconds(*legacy.CompletionTimestamp)
			out.CompletedAt = &t
			if _, ok := raw["updated_at"]; !ok {
				if err := set("updated_at", t); err != nil {
					return err
				}
			}
		}
		if err := set("outcome", out); err != nil {
			return err
		}
	}

	for _, key := range []string{"ticket_id", "pr_url", "pess_score", "completion_timestamp", "status",
		"changes_made", "change_required", "template_name"} {
		delete(raw, key)
	}
	return nil
}

// legacyTime accepts either a unix-second number or an RFC 3339 string.
func legacyTime(v json.RawMessage) (time.Time, bool, error) {
	if len(v) == 0 || string(v) == "null" {
		return time.Time{}, false, nil
	}
	var secs float64
	if err := json.Unmarshal(v, &secs); err == nil {
		return unixSeconds(secs), true, nil
	}
	var t time.Time
	if err := json.Unmarshal(v, &t); err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func unixSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
