// Package rigel answers mathematical problems with a generate, select and
// verify pipeline over language models.
//
// A solve runs N independent reasoners, each producing a candidate solution
// that ends in a \boxed{...} answer. A selector picks the most trustworthy
// candidate of the pool and a validator confirms it or supplies a corrected
// answer. Every stage failure has a deterministic fallback, so a solve ends
// with exactly one answer or ErrNoCandidateAvailable.
//
// # Quick Start
//
//	backend := llm.NewAnthropic()
//	inv := rigel.NewLLMInvoker(backend)
//
//	doc, _ := dsl.Default()
//	p, err := dsl.Build(doc, inv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := p.Solve(ctx, rigel.NewProblem("What is 2+3?"), 3)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Answer)
//
// # Custom Stages
//
// Reasoner, Selector and Validator are interfaces; any implementation can be
// plugged in:
//
//	p, err := rigel.New(rigel.Stages{
//	    Reasoner:  &rigel.ModelReasoner{Invoker: inv, Task: reasonTask},
//	    Selector:  rigel.MajoritySelector{},
//	    Validator: nil, // skip verification
//	})
//
// # Fallbacks
//
//   - A reasoner output without a boxed answer is retried (WithRetry), then dropped
//   - A selector pick that is not in the pool falls back to the first candidate
//   - An unclassifiable or incomplete verdict falls back to the selection
//
// Each recovered failure is recorded as a Diagnostic on the Result, logged,
// counted in Prometheus metrics and delivered to event handlers.
//
// # Async
//
//	f := p.SolveAsync(ctx, problem, 3)
//	// ...
//	result, err := f.Await(ctx)
//
// # Observability
//
//	p, _ := rigel.New(stages,
//	    rigel.WithLogger(logger),
//	    rigel.WithMetrics(rigel.MustNewMetrics(registry)),
//	    rigel.WithEventHandler(func(e rigel.Event) {
//	        fmt.Println(e.Type, e.Stage, e.Error)
//	    }),
//	)
package rigel
