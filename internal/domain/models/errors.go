package models

import "errors"

var (
	// ErrMissingData is returned when a ticker has no price data at all.
	ErrMissingData = errors.New("missing price data")
	// ErrInsufficientHistory is returned when there are too few rows to train a model.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrBudgetExhausted is returned when the daily provider call limit has been used up.
	ErrBudgetExhausted = errors.New("daily api call budget exhausted")
	// ErrRefreshInProgress is returned when another refresh holds the refresh lock.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)
