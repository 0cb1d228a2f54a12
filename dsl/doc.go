// Package dsl loads pipeline documents: YAML files (typically named
// *.rigel.yaml) that declare the roles and prompts of the three pipeline
// stages.
//
// # Document Overview
//
// A document defines:
//
//   - Agents: roles the model plays (role, goal, backstory, llm)
//   - Tasks: prompt templates assigned to an agent
//   - Pipeline: which task each stage runs
//   - Settings: rounds, timeouts, retries, selection strategy
//
// # Example
//
//	name: math
//
//	agents:
//	  reasoner:
//	    role: Mathematical Deductive Reasoner
//	    goal: Solve problems step by step
//
//	tasks:
//	  reasoning_task:
//	    agent: reasoner
//	    description: "Solve: {{problem}}"
//	    expected_output: Final answer in \boxed{}
//
//	settings:
//	  selection: majority
//	  verify: false
//
// # Using a Document
//
//	doc, err := dsl.Load("math.rigel.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inv := rigel.NewLLMInvoker(backend, rigel.WithDefaultModel(doc.DefaultModel()))
//	pipeline, err := dsl.Build(doc, inv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := pipeline.Solve(ctx, rigel.NewProblem("What is 2+3?"), doc.Rounds(rigel.DefaultRuns))
//
// # Placeholders
//
// Task text may reference:
//
//	{{problem}}      - The problem text
//	{{candidates}}   - Every candidate, numbered (selection)
//	{{count}}        - Number of candidates (selection)
//	{{candidate}}    - The selected candidate's full text (validation)
//	{{answer}}       - The selected candidate's answer (validation)
//
// Filters apply with a pipe: {{problem | trim}}, {{answer | default:none}}.
//
// # Validation
//
// Parse reports the first problem as a *ValidationError with a hint:
//
//	tasks.reasoning_task.agent: unknown agent 'reasonr'
//	  → Did you mean 'reasoner'?
package dsl
