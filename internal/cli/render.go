// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Incremental rendering of endpoint snapshots.
//
// The renderer compares each snapshot with what it already printed and
// writes only the difference: new messages, the next part of a streaming
// answer, and mix progress lines.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// Renderer prints snapshots of one endpoint to a writer.
type Renderer struct {
	w io.Writer

	// ShowUser prints user messages. The REPL leaves it off because the
	// prompt already echoes them.
	ShowUser bool
	// ShowStatus prints connection status transitions.
	ShowStatus bool

	printed map[string]bool

	// openID is the streaming message being printed, shown the part of it
	// already on screen.
	openID string
	shown  string

	status   model.ConnectionStatus
	phase    model.PhaseInfo
	workers  map[string]model.WorkerStatusEntry
	progress model.Phase2Progress
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{
		w:       w,
		printed: make(map[string]bool),
		workers: make(map[string]model.WorkerStatusEntry),
	}
}

// Render prints what changed since the previous snapshot.
func (r *Renderer) Render(s model.Snapshot) {
	r.renderStatus(s.Status)
	r.renderPhase(s.Phase)
	r.renderWorkers(s.Workers)
	r.renderProgress(s.Progress)

	for _, msg := range s.Messages {
		if r.printed[msg.ID] {
			continue
		}
		switch {
		case msg.Streaming:
			r.renderStreaming(msg)
		case msg.Role == model.RoleUser && !r.ShowUser:
			r.printed[msg.ID] = true
		default:
			r.renderSealed(msg)
			r.printed[msg.ID] = true
		}
	}
}

// Forget drops the printed-message bookkeeping, for example after the
// transcript was replaced.
func (r *Renderer) Forget() {
	r.closeOpen()
	r.printed = make(map[string]bool)
	r.workers = make(map[string]model.WorkerStatusEntry)
	r.phase = model.PhaseInfo{}
	r.progress = model.Phase2Progress{}
}

// MarkPrinted records every message of s as already shown.
func (r *Renderer) MarkPrinted(s model.Snapshot) {
	for _, msg := range s.Messages {
		if !msg.Streaming {
			r.printed[msg.ID] = true
		}
	}
}

func (r *Renderer) renderStreaming(msg model.ChatMessage) {
	if r.openID != msg.ID {
		r.closeOpen()
		fmt.Fprintln(r.w, assistantStyle.Render(model.RoleAssistant.DisplayName()+":"))
		r.openID = msg.ID
		r.shown = ""
	}
	if rest, ok := strings.CutPrefix(msg.Content, r.shown); ok && rest != "" {
		io.WriteString(r.w, rest)
		r.shown = msg.Content
	}
}

func (r *Renderer) renderSealed(msg model.ChatMessage) {
	if msg.ID == r.openID {
		// The final content may replace the streamed text instead of extending it.
		rest, extends := strings.CutPrefix(msg.Content, r.shown)
		r.openID = ""
		r.shown = ""
		if extends {
			io.WriteString(r.w, rest)
			fmt.Fprintln(r.w)
			return
		}
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, DimStyle.Render("(final answer)"))
		fmt.Fprintln(r.w, msg.Content)
		return
	}

	r.closeOpen()
	switch msg.Role {
	case model.RoleUser:
		fmt.Fprintf(r.w, "%s %s\n", userStyle.Render(msg.Role.DisplayName()+":"), msg.Content)
	case model.RoleAssistant:
		fmt.Fprintln(r.w, assistantStyle.Render(msg.Role.DisplayName()+":"))
		fmt.Fprintln(r.w, msg.Content)
	default:
		if msg.IsError {
			fmt.Fprintf(r.w, "%s %s\n", ErrorStyle.Render("[ERROR]"), msg.Content)
		} else {
			fmt.Fprintf(r.w, "%s %s\n", WarningStyle.Render("[INFO]"), msg.Content)
		}
	}
}

// closeOpen ends a streaming line interrupted by other output.
func (r *Renderer) closeOpen() {
	if r.openID == "" {
		return
	}
	fmt.Fprintln(r.w)
	r.openID = ""
	r.shown = ""
}

func (r *Renderer) renderStatus(status model.ConnectionStatus) {
	if status == r.status {
		return
	}
	r.status = status
	if !r.ShowStatus {
		return
	}
	switch status {
	case model.StatusConnected, model.StatusDisconnected, model.StatusError:
		r.closeOpen()
		fmt.Fprintln(r.w, RenderConnectionStatus(status))
	}
}

func (r *Renderer) renderPhase(phase model.PhaseInfo) {
	if phase == r.phase {
		return
	}
	r.phase = phase
	if phase.IsIdle() {
		return
	}
	r.closeOpen()
	line := fmt.Sprintf("Phase %d/%d", phase.Phase, model.MaxPhase)
	if phase.Description != "" {
		line += ": " + phase.Description
	}
	fmt.Fprintln(r.w, phaseStyle.Render(line))
}

func (r *Renderer) renderWorkers(workers []model.WorkerStatusEntry) {
	if len(workers) == 0 {
		r.workers = make(map[string]model.WorkerStatusEntry)
		return
	}
	for _, w := range workers {
		if prev, ok := r.workers[w.Category]; ok && prev == w {
			continue
		}
		r.workers[w.Category] = w
		r.closeOpen()
		line := fmt.Sprintf("  %s (%s) %s", w.Category, w.Model, RenderWorkerState(w.Status))
		if w.Status != model.WorkerRunning && w.Elapsed > 0 {
			line += fmt.Sprintf(" %.1fs", w.Elapsed)
		}
		fmt.Fprintln(r.w, workerStyle.Render(line))
	}
}

func (r *Renderer) renderProgress(p model.Phase2Progress) {
	if p == r.progress {
		return
	}
	r.progress = p
	if p.Total == 0 {
		return
	}
	r.closeOpen()
	fmt.Fprintln(r.w, DimStyle.Render(fmt.Sprintf("  %d/%d workers finished", p.Completed, p.Total)))
}
