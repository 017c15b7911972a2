// Package candidate defines the contract for the fit/score units a study
// runs (externally supplied model-search objects the engine treats as
// opaque) along with the failure classification the engine uses to decide
// whether a failing unit downgrades its trial or aborts the whole run.
package candidate
