package collection

import "github.com/recordlink/recordlink/internal/record"

// upsertListEntry inserts or replaces an entry in an embedded list, keyed by
// keyField. An existing entry with the same key is replaced in place so the
// list order stays stable; otherwise the entry is appended.
func upsertListEntry(list interface{}, entry record.Record, keyField string) []interface{} {
	entries, _ := record.AsList(list)
	key, _ := entry.Get(keyField)

	for i, existing := range entries {
		existingRec, ok := record.AsRecord(existing)
		if !ok {
			continue
		}
		existingKey, ok := existingRec.Get(keyField)
		if ok && record.Equal(existingKey, key) {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}

// removeListEntries drops every entry matching the criteria from an embedded
// list. The second return value reports whether anything was removed.
func removeListEntries(list interface{}, entryKey record.Record) ([]interface{}, bool) {
	entries, ok := record.AsList(list)
	if !ok {
		return nil, false
	}

	kept := entries[:0]
	removed := false
	for _, existing := range entries {
		existingRec, isRec := record.AsRecord(existing)
		if isRec && record.Matches(existingRec, entryKey) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	return kept, removed
}
