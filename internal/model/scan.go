package model

import "time"

// Citation is a source a model attributed part of its answer to,
// normalized regardless of the provider's raw format.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ScanResult is an immutable record of one model call for one query.
// Rows are append-only and keyed by (QueryID, Model, CreatedAt).
type ScanResult struct {
	ID                   string     `json:"id"`
	QueryID              string     `json:"query_id"`
	BrandID              string     `json:"brand_id"`
	Model                string     `json:"model"`
	ResponseText         string     `json:"response_text"`
	BrandMentioned       bool       `json:"brand_mentioned"`
	BrandPosition        *int       `json:"brand_position,omitempty"`
	MentionContext       string     `json:"mention_context,omitempty"`
	CompetitorsMentioned []string   `json:"competitors_mentioned"`
	Citations            []Citation `json:"citations,omitempty"`
	BrandInCitations     *bool      `json:"brand_in_citations,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// BatchSummary reports the outcome of one scan batch.
type BatchSummary struct {
	BrandID         string    `json:"brand_id"`
	VisibilityScore int       `json:"visibility_score"`
	CitationRate    int       `json:"citation_rate"`
	GapCount        int       `json:"gap_count"`
	Scanned         int       `json:"scanned"`
	Failed          int       `json:"failed"`
	Denied          int       `json:"denied"`
	SpentCents      int       `json:"spent_cents"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
