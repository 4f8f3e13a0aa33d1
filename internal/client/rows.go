package client

import (
	"encoding/json"
	"fmt"
)

// mergeJSON shallow-merges patch into base at the top level. Keys present
// in patch win; a null in patch clears the key.
func mergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	var baseMap, patchMap map[string]json.RawMessage
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseMap); err != nil {
			return nil, fmt.Errorf("merge target is not an object: %w", err)
		}
	}
	if baseMap == nil {
		baseMap = map[string]json.RawMessage{}
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, fmt.Errorf("patch is not an object: %w", err)
	}
	for k, v := range patchMap {
		baseMap[k] = v
	}
	return json.Marshal(baseMap)
}

// prependRow puts row at the head of a JSON array of rows.
func prependRow(rowSet json.RawMessage, row json.RawMessage) (json.RawMessage, error) {
	rows, err := decodeRows(rowSet)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(rows)+1)
	out = append(out, row)
	out = append(out, rows...)
	return json.Marshal(out)
}

// replaceRowByID swaps the row whose id matches for the given row. Rows
// that don't match pass through untouched; a miss is not an error.
func replaceRowByID(rowSet json.RawMessage, id string, row json.RawMessage) (json.RawMessage, error) {
	rows, err := decodeRows(rowSet)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rowID(rows[i]) == id {
			rows[i] = row
		}
	}
	return json.Marshal(rows)
}

// patchRowByID shallow-merges patch into the row whose id matches.
func patchRowByID(rowSet json.RawMessage, id string, patch json.RawMessage) (json.RawMessage, error) {
	rows, err := decodeRows(rowSet)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rowID(rows[i]) == id {
			merged, err := mergeJSON(rows[i], patch)
			if err != nil {
				return nil, err
			}
			rows[i] = merged
		}
	}
	return json.Marshal(rows)
}

// removeRowByID drops the row whose id matches.
func removeRowByID(rowSet json.RawMessage, id string) (json.RawMessage, int, error) {
	rows, err := decodeRows(rowSet)
	if err != nil {
		return nil, 0, err
	}
	kept := rows[:0]
	removed := 0
	for _, r := range rows {
		if rowID(r) == id {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	out, err := json.Marshal(kept)
	return out, removed, err
}
