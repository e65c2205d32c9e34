// Package pipeline implements the ordered document preprocessing engine and
// its standard steps library.
//
// A pipeline threads each input independently through its steps in declared
// order; a drop on one input never affects its neighbours, and the output
// preserves the relative order of the surviving inputs. The engine does not
// reorder or deduplicate steps: ordering is caller-controlled and
// consequential (see DeduplicateByText).
package pipeline

import "github.com/wizanyx/finsent/models"

// Pipeline is an ordered sequence of steps. A Pipeline value holds no run
// state and is safe for concurrent and repeated use: stateful steps are
// re-materialized fresh for every Process call.
type Pipeline struct {
	steps []Step
}

// New composes a pipeline from steps in the given order.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Default composes the baseline pipeline:
//
//	normalize_whitespace -> drop_empty_text(minTextLen) -> truncate_text(maxTextLen) -> deduplicate_by_text
//
// Deduplication deliberately runs after truncation, so two originally distinct
// long texts sharing a truncated prefix collapse into one. Callers who need
// full-text dedup should use DedupBeforeTruncate instead; both orderings are
// equally supported.
func Default(minTextLen, maxTextLen int) (*Pipeline, error) {
	drop, err := DropEmptyText(minTextLen)
	if err != nil {
		return nil, err
	}
	trunc, err := TruncateText(maxTextLen)
	if err != nil {
		return nil, err
	}
	return New(NormalizeWhitespace(), drop, trunc, DeduplicateByText()), nil
}

// DedupBeforeTruncate composes the alternative ordering in which
// deduplication sees full-length text.
func DedupBeforeTruncate(minTextLen, maxTextLen int) (*Pipeline, error) {
	drop, err := DropEmptyText(minTextLen)
	if err != nil {
		return nil, err
	}
	trunc, err := TruncateText(maxTextLen)
	if err != nil {
		return nil, err
	}
	return New(NormalizeWhitespace(), drop, DeduplicateByText(), trunc), nil
}

// Failure records a per-item construction error. The failing item is excluded
// from the output while valid sibling items proceed normally.
type Failure struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// Result is the outcome of one batch run.
type Result struct {
	Docs     []models.Document
	Failures []Failure
	Dropped  map[string]int // step name -> documents dropped by that step
}

// materialize builds the per-run step list, instantiating stateful steps
// fresh so dedup history never leaks across runs.
func (p *Pipeline) materialize() []Step {
	steps := make([]Step, len(p.steps))
	for i, s := range p.steps {
		if st, ok := s.(Stateful); ok {
			steps[i] = st.Fresh()
		} else {
			steps[i] = s
		}
	}
	return steps
}

func runOne(steps []Step, doc models.Document, dropped map[string]int) (models.Document, bool) {
	for _, s := range steps {
		var keep bool
		doc, keep = s.Apply(doc)
		if !keep {
			dropped[s.Name()]++
			return models.Document{}, false
		}
	}
	return doc, true
}

// Process runs pre-built documents through the pipeline.
func (p *Pipeline) Process(docs []models.Document) Result {
	steps := p.materialize()
	res := Result{Dropped: make(map[string]int)}
	for _, doc := range docs {
		if out, keep := runOne(steps, doc, res.Dropped); keep {
			res.Docs = append(res.Docs, out)
		}
	}
	return res
}

// ProcessRaw constructs documents from loosely-typed rows and runs them
// through the pipeline. Rows failing construction validation are recorded in
// Failures with their input index; the batch continues.
func (p *Pipeline) ProcessRaw(rows []map[string]interface{}) Result {
	steps := p.materialize()
	res := Result{Dropped: make(map[string]int)}
	for i, row := range rows {
		doc, err := models.FromMap(row)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Index: i, Err: err})
			continue
		}
		if out, keep := runOne(steps, doc, res.Dropped); keep {
			res.Docs = append(res.Docs, out)
		}
	}
	return res
}
