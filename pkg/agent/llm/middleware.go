package llm

// Middleware wraps an LLMClient with additional behavior.
type Middleware func(LLMClient) LLMClient

// Chain applies middlewares so the first listed is outermost.
//
//	Chain(raw, metrics, retry, timeout)
//	// metrics(retry(timeout(raw)))
func Chain(client LLMClient, middlewares ...Middleware) LLMClient {
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
