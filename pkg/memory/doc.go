// Package memory implements tinycrab's memory store (C4): append-only
// structured memory entries with a recency/importance/relevance scored
// search, backed by a single line-delimited JSON file per agent.
//
// Usage:
//
//	store, _ := memory.Open(filepath.Join(memoryDir, "entries.jsonl"))
//	entry, _ := store.Add("likes tea", 0.4, []string{"preference"}, "")
//	results, _ := store.Search(memory.SearchOptions{Query: "tea"})
package memory
