package model

import "time"

// LineKind is the drawing tool that produced a line.
type LineKind string

const (
	LineTrend      LineKind = "trend"
	LineHorizontal LineKind = "horizontal"
)

// DrawingLine is a user-drawn chart annotation.
// Horizontal lines have EndY == StartY; the drawing tool enforces it.
type DrawingLine struct {
	ID        string    `json:"id"`
	Kind      LineKind  `json:"type"`
	StartX    float64   `json:"startX"`
	StartY    float64   `json:"startY"`
	EndX      float64   `json:"endX"`
	EndY      float64   `json:"endY"`
	Color     string    `json:"color"`
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	ChartID   string    `json:"chartId"`
	CreatedAt time.Time `json:"created_at"`
}
