// pkg/utils/reporter.go - progress reporting interface shared by installer and front ends

package utils

// Reporter receives textual progress and a completion percentage.
// Implementations must tolerate calls from a single goroutine only.
type Reporter interface {
	Message(txt string)
	Detail(txt string)
	Percent(pct int) // -1 = indeterminate
	Error(err error)
}

// NoOpReporter implements Reporter but does nothing (for headless operation)
type NoOpReporter struct{}

func NewNoOpReporter() Reporter {
	return &NoOpReporter{}
}

func (r *NoOpReporter) Message(txt string) {}
func (r *NoOpReporter) Detail(txt string)  {}
func (r *NoOpReporter) Percent(pct int)    {}
func (r *NoOpReporter) Error(err error)    {}

// RecordingReporter keeps every call in order. Used by tests and dry runs.
type RecordingReporter struct {
	Messages []string
	Details  []string
	Percents []int
	Errors   []error
}

func (r *RecordingReporter) Message(txt string) { r.Messages = append(r.Messages, txt) }
func (r *RecordingReporter) Detail(txt string)  { r.Details = append(r.Details, txt) }
func (r *RecordingReporter) Percent(pct int)    { r.Percents = append(r.Percents, pct) }
func (r *RecordingReporter) Error(err error)    { r.Errors = append(r.Errors, err) }
