// Package embedder turns program text into vectors.
//
// Providers:
//
//   - jina and openai call the hosted /embeddings APIs over HTTP
//   - ollama talks to any OpenAI-compatible server through langchaingo
//   - local hashes character trigrams offline; it needs no network and is
//     deterministic, which makes it the default for development and tests
//
// Every provider accepts an optional Cache. The LRU cache keeps vectors in
// process; RedisCache shares them between the server and backfill runs, and
// TieredCache stacks the two.
//
//	emb, err := embedder.NewFromConfig(ctx, cfg.Embedding)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vec, err := embedder.Embed(ctx, emb, "mounjaro savings card")
//
// Cache keys include the provider and model, so switching models never
// returns a stale vector of the wrong dimension.
package embedder
