package model

// Report is the outcome of one query cycle: a verdict for every room whose
// timeline could be fetched, plus how many fetches failed.
type Report struct {
	Verdicts []Verdict
	Failures int
}
