// Package retrieval is the public entry point to the hybrid retrieval
// engine.
//
// A Service owns one data directory: the SQLite document store, the
// in-memory lexical and vector indexes rebuilt from it at startup, the
// embedder and the background purger. All writes go through the indexer
// saga; reads go through the query planner.
//
//	svc, err := retrieval.OpenDir(ctx, ".")
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	_, err = svc.Add(ctx, "101", "Quantum computing uses qubits.", nil)
//	results, err := svc.Search(ctx, "quantum computing", search.SearchOptions{TopN: 3})
package retrieval
