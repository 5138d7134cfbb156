package server

import (
	"encoding/json"

	"MarketReplay/internal/collector"
	"MarketReplay/internal/model"
	"MarketReplay/internal/session"
)

type statusMsg struct {
	Type  string `json:"type"` // "status"
	Level string `json:"level"`
	Text  string `json:"text"`
}

type frameMsg struct {
	Type string `json:"type"` // "frame"
	session.Update
}

type visibleMsg struct {
	Type    string      `json:"type"` // "visible"
	ChartID string      `json:"chartId"`
	Bars    []model.Bar `json:"bars"`
}

type fillMsg struct {
	Type    string      `json:"type"` // "fill"
	ChartID string      `json:"chartId"`
	Fill    *model.Fill `json:"fill"`
}

type ledgerMsg struct {
	Type     string          `json:"type"` // "ledger"
	Snapshot *model.Snapshot `json:"snapshot"`
}

type lineMsg struct {
	Type string            `json:"type"` // "line"
	Line model.DrawingLine `json:"line"`
}

type ticksMsg struct {
	Type    string           `json:"type"` // "ticks"
	ChartID string           `json:"chartId"`
	Ticks   []collector.Tick `json:"ticks"`
	// Price is the print in force at the requested timestamp, when one was given.
	Price *float64 `json:"price,omitempty"`
}

type ledgersMsg struct {
	Type    string   `json:"type"` // "ledgers"
	ChartID string   `json:"chartId"`
	Symbols []string `json:"symbols"`
}

type replyMsg struct {
	Type string `json:"type"` // "reply"
	Text string `json:"text"`
}

type controlMsg struct {
	Type   string          `json:"type"`   // "control"
	Action string          `json:"action"` // play/pause/seek/buy etc
	Chart  string          `json:"chart,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

func info(text string) statusMsg    { return statusMsg{Type: "status", Level: "info", Text: text} }
func fail(err error) statusMsg      { return statusMsg{Type: "status", Level: "error", Text: err.Error()} }
func success(text string) statusMsg { return statusMsg{Type: "status", Level: "success", Text: text} }
