// Package study provides the trial orchestration engine. A Study owns an
// ordered list of trials, drives their execution sequentially or through a
// bounded worker pool under a wall-clock budget, classifies each outcome, and
// records exactly one terminal state per trial in its store.
package study
