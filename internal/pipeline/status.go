package pipeline

// Stage labels a pipeline state transition for UI consumption.
type Stage string

const (
	StageGeneratingQueries Stage = "generating_queries"
	StageAnalyzingResults  Stage = "analyzing_results"
	StageScraping          Stage = "scraping"
)

// StatusEvent is emitted at every stage transition. URLs is populated only
// for the scraping stage.
type StatusEvent struct {
	Stage Stage    `json:"stage"`
	URLs  []string `json:"urls,omitempty"`
}

// StatusFunc receives stage transitions. Callbacks run synchronously on
// the pipeline's goroutine and must return quickly.
type StatusFunc func(StatusEvent)

func (p *Pipeline) emitStatus(onStatus StatusFunc, event StatusEvent) {
	if onStatus != nil {
		onStatus(event)
	}
}
