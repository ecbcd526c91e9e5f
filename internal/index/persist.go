package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// idMapEntry serializes as the spec's [label, {userId, externalId,
// displayName, clientRef}] tuple.
type idMapEntry struct {
	Label uint64
	Meta  Entry
}

type metaFields struct {
	UserID      uint64 `json:"userId"`
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	ClientRef   string `json:"clientRef"`
}

func (e idMapEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{
		e.Label,
		metaFields{
			UserID:      e.Meta.UserID,
			ExternalID:  e.Meta.ExternalID,
			DisplayName: e.Meta.DisplayName,
			ClientRef:   e.Meta.ClientRef,
		},
	})
}

func (e *idMapEntry) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &e.Label); err != nil {
		return err
	}
	var m metaFields
	if err := json.Unmarshal(tuple[1], &m); err != nil {
		return err
	}
	e.Meta = Entry{
		Label:       e.Label,
		UserID:      m.UserID,
		ExternalID:  m.ExternalID,
		DisplayName: m.DisplayName,
		ClientRef:   m.ClientRef,
	}
	return nil
}

// reverseEntry serializes as the spec's [userId, label] tuple.
type reverseEntry [2]uint64

type onDiskMeta struct {
	NextLabel     uint64         `json:"nextLabel"`
	LastRebuildAt *time.Time     `json:"lastRebuildAt"`
	IDMap         []idMapEntry   `json:"idMap"`
	ReverseIDMap  []reverseEntry `json:"reverseIdMap"`
}

func (m onDiskMeta) labelToMeta() map[uint64]*Entry {
	out := make(map[uint64]*Entry, len(m.IDMap))
	for _, e := range m.IDMap {
		entry := e.Meta
		out[e.Label] = &entry
	}
	return out
}

func (m onDiskMeta) userToLabel() map[uint64]uint64 {
	out := make(map[uint64]uint64, len(m.ReverseIDMap))
	for _, e := range m.ReverseIDMap {
		out[e[0]] = e[1]
	}
	return out
}

func loadMeta(path string) (onDiskMeta, error) {
	var m onDiskMeta
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("unmarshal index metadata: %w", err)
	}
	return m, nil
}

// writeFileAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a truncated
// file at path. The metadata file is written through this; saveLocked
// streams the graph file through the same temp-then-rename steps inline.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}

// saveLocked must be called with idx.mu held (read lock is sufficient for
// exporting, since Export only reads the graph).
func (idx *Index) saveLocked() error {
	if idx.cfg.IndexPath == "" {
		return nil
	}

	if idx.graph == nil || (idx.totalVectors == 0 && len(idx.labelToMeta) == 0) {
		_ = os.Remove(idx.cfg.IndexPath)
		if idx.cfg.MetaPath != "" {
			_ = os.Remove(idx.cfg.MetaPath)
		}
		return nil
	}

	dir := filepath.Dir(idx.cfg.IndexPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmpGraph := idx.cfg.IndexPath + ".tmp"
	f, err := os.Create(tmpGraph) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	if err := idx.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpGraph)
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpGraph)
		return fmt.Errorf("closing temp index file: %w", err)
	}
	if err := os.Rename(tmpGraph, idx.cfg.IndexPath); err != nil {
		_ = os.Remove(tmpGraph)
		return fmt.Errorf("renaming temp index file into place: %w", err)
	}

	if idx.cfg.MetaPath == "" {
		return nil
	}

	meta := onDiskMeta{
		NextLabel:     idx.nextLabel,
		LastRebuildAt: idx.lastRebuildAt,
		IDMap:         make([]idMapEntry, 0, len(idx.labelToMeta)),
		ReverseIDMap:  make([]reverseEntry, 0, len(idx.userToLabel)),
	}
	for label, entry := range idx.labelToMeta {
		meta.IDMap = append(meta.IDMap, idMapEntry{Label: label, Meta: *entry})
	}
	for userID, label := range idx.userToLabel {
		meta.ReverseIDMap = append(meta.ReverseIDMap, reverseEntry{userID, label})
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}
	return writeFileAtomic(idx.cfg.MetaPath, data, 0o600)
}
