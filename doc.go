// Package promptforge turns a role and a handful of input/output examples
// into a production-ready system prompt through a staged, model-driven
// optimization workflow.
//
// PromptForge runs a prompt engineering loop the way an experienced prompt
// engineer would: it studies the examples, drafts a prompt, critiques the
// draft against an evaluation rubric, and proposes improved alternatives.
// It focuses on making it easy to:
//   - Generate system prompts from nothing but examples of desired behavior
//   - Evaluate and iteratively improve prompts with model self-critique
//   - Run the same workflow against Gemini, OpenAI or Anthropic models
//   - Serve optimization as an agent over the A2A protocol
//   - Batch-optimize whole prompt corpora with bounded concurrency
//
// Key Components:
//
//   - Optimizer: The six-stage optimization workflow. Each stage feeds the
//     next through an accumulated State, and every stage carries a fallback
//     so a degraded model response still yields a usable result:
//     * GenerateGuide: Distills a prompt engineering guide for the role
//     * GeneratePrompt: Drafts the initial system prompt from the examples
//     * GenerateEvalGuide: Produces an evaluation rubric for the draft
//     * Evaluate: Critiques the draft against the rubric
//     * Improve: Proposes three improved alternative prompts
//     * Finalize: Selects the recommended prompt from the alternatives
//
//   - Pipeline: A generic staged execution engine with per-stage retry,
//     exponential backoff, fallbacks and progress observation. The
//     optimizer is its only client today but it carries no optimizer
//     types.
//
//   - LLMs: Unified access to multiple model providers behind the core.LLM
//     interface:
//     * Google Gemini
//     * OpenAI (including any OpenAI-compatible endpoint via base_url)
//     * Anthropic Claude
//
//   - A2A: An agent-to-agent protocol server that exposes the optimizer as
//     a discoverable agent with JSON-RPC task handling and SSE streaming
//     of stage progress.
//
//   - History: SQLite-backed persistence of completed runs with listing,
//     inspection, deletion and age-based pruning.
//
//   - Datasets: Apache Arrow/Parquet corpus loading that groups example
//     rows by role and turns them into batch optimization requests.
//
//   - Cache: An in-memory LRU response cache keyed on the effective
//     generation parameters, so identical stage calls within a TTL are
//     served locally instead of reaching the provider again.
//
// Simple Example:
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/XiaoConstantine/promptforge/pkg/llms"
//	    "github.com/XiaoConstantine/promptforge/pkg/optimizer"
//	)
//
//	func main() {
//	    // Create a model for a provider
//	    llm, err := llms.NewLLM("gemini", "your-api-key", "")
//	    if err != nil {
//	        log.Fatalf("Failed to create LLM: %v", err)
//	    }
//
//	    workflow, err := optimizer.NewWorkflow(llm)
//	    if err != nil {
//	        log.Fatalf("Failed to create workflow: %v", err)
//	    }
//
//	    // Optimize a prompt from examples
//	    result, err := workflow.Optimize(context.Background(), optimizer.Request{
//	        Role: "software developers",
//	        Examples: []optimizer.Example{
//	            {Input: "Write a function", Output: "def example_function():"},
//	            {Input: "Create a class", Output: "class ExampleClass:"},
//	        },
//	    })
//	    if err != nil {
//	        log.Fatalf("Optimization failed: %v", err)
//	    }
//
//	    fmt.Println(result.FinalPrompt)
//	}
//
// Advanced Features:
//
//   - Structured Logging: Leveled, field-carrying logs with per-request
//     model and token annotations threaded through context.
//
//   - Error Handling: Coded errors that survive wrapping, so callers can
//     branch on error class rather than message text.
//
//   - Stage Resilience: Configurable retry with exponential backoff plus
//     per-stage fallbacks that let a run complete degraded instead of
//     failing outright.
//
//   - Response Caching: Optional LRU cache with byte budget and TTL that
//     deduplicates identical model calls across runs.
//
//   - Batch Optimization: Corpus-wide optimization with a bounded worker
//     pool and order-preserving results.
//
//   - Run History: Completed runs are recorded to SQLite and can be
//     listed, replayed and pruned from the CLI.
//
//   - Streaming Support: Process model outputs incrementally as they are
//     generated.
//
// Working with the Service:
//
//	// A Service shares one workflow per provider. API keys are read from
//	// the environment (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY)
//	// unless configured on the factory.
//	service := optimizer.NewService(
//	    optimizer.WithTemperature(0.5),
//	    optimizer.WithMaxTokens(4096),
//	)
//
//	result, err := service.Optimize(ctx, optimizer.Request{
//	    Role:     "content writers",
//	    Provider: "anthropic",
//	    Examples: []optimizer.Example{
//	        {Input: "Write an article", Output: "Here's a compelling article..."},
//	    },
//	})
//
// Working with the A2A Server:
//
//	executor := a2a.NewOptimizerExecutor(service, a2a.WithDefaultProvider("gemini"))
//	srv, err := a2a.NewServer(executor, a2a.ServerConfig{
//	    Host: "localhost",
//	    Port: 9999,
//	    Name: "prompt-optimizer",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create server: %v", err)
//	}
//
//	// Serves /.well-known/agent.json, /rpc and /stream/{taskID} until ctx
//	// is canceled.
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatalf("Server error: %v", err)
//	}
//
// Working with Batch Optimization:
//
//	groups, err := datasets.LoadCorpus(ctx, "corpus.parquet")
//	if err != nil {
//	    log.Fatalf("Failed to load corpus: %v", err)
//	}
//
//	requests := datasets.Requests(groups, "gemini")
//	for _, br := range service.OptimizeBatch(ctx, requests, 4) {
//	    if br.Err != nil {
//	        log.Printf("%s failed: %v", br.Request.Role, br.Err)
//	        continue
//	    }
//	    fmt.Println(br.Result.FinalPrompt)
//	}
//
// For more examples and detailed documentation, visit:
// https://github.com/XiaoConstantine/promptforge
//
// PromptForge is released under the MIT License.
package promptforge
