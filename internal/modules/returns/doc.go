// Package returns converts price history into daily and cumulative returns
// and evaluates the annualised risk metrics of a weighted portfolio.
//
// Every function here is pure: inputs are never modified and nothing is
// cached, so the same matrix may be shared across goroutines.
package returns
