/*
Package dealgraph is a hybrid knowledge retrieval and temporal ingestion
pipeline for M&A due diligence. Deal documents, Q&A responses and analyst
chat flow through an extraction pipeline into a temporal knowledge graph;
queries run graph-native search with a vector fast path as fallback, merge
and rerank the candidates, and return cited results.

Every node, edge and chunk carries a composite tenant scope (organization
plus deal) and every query filters on it. Facts are never mutated:
corrections supersede, setting the old fact's invalid_at atomically with
the supersession edge, so the graph answers "what did we believe on date
X" as well as "what do we believe now".

Basic usage:

	client, err := dealgraph.New(ctx, dealgraph.Options{
		Store:    store,    // driver.TemporalFactStore
		Index:    index,    // fastpath.Index
		Embedder: embedder, // embedder.Client
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close(ctx)

	scope, _ := types.NewTenantScope("acme-capital", "project-neon")
	_, err = client.IngestDocumentChunks(ctx, scope, dealgraph.DocumentInput{
		DocumentID:   "doc-42",
		DocumentName: "Q3_Financial_Report.xlsx",
		Chunks:       chunks,
	})

	result, err := client.Retrieve(ctx, scope, "revenue growth drivers", dealgraph.RetrieveOptions{})
*/
package dealgraph
