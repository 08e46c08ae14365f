// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
	"github.com/tsunamayo7/helix-ai-studio/internal/transcript"
	"github.com/tsunamayo7/helix-ai-studio/internal/util"
)

// maxLoggedPayload bounds the frame text written to diagnostics.
const maxLoggedPayload = 200

// SessionSink receives chat identity updates pushed by the server.
type SessionSink interface {
	OnChatCreated(id model.ChatID)
	OnTitleUpdated(id model.ChatID, title string)
}

// Options configures a Dispatcher.
type Options struct {
	// Transcript receives chunks and system messages. Required.
	Transcript *transcript.Transcript

	// Session receives chat identity updates. May be nil.
	Session SessionSink

	// Logger is the diagnostic sink. Defaults to a no-op logger.
	Logger *zap.Logger

	// OnMessage is called for every message that became final: sealed
	// assistant answers and appended system messages.
	OnMessage func(model.ChatMessage)
}

// Dispatcher owns the status, executing flag and mix progress of one endpoint.
type Dispatcher struct {
	transcript *transcript.Transcript
	session    SessionSink
	logger     *zap.Logger
	onMessage  func(model.ChatMessage)

	status       model.ConnectionStatus
	statusDetail string
	executing    bool
	phase        model.PhaseInfo
	workers      []model.WorkerStatusEntry
	progress     model.Phase2Progress
}

// New creates a Dispatcher in the disconnected state.
func New(opts Options) *Dispatcher {
	if opts.Transcript == nil {
		opts.Transcript = transcript.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		transcript: opts.Transcript,
		session:    opts.Session,
		logger:     opts.Logger,
		onMessage:  opts.OnMessage,
		status:     model.StatusDisconnected,
		workers:    make([]model.WorkerStatusEntry, 0),
	}
}

// Compile-time check that every frame kind is handled.
var _ protocol.Visitor = (*Dispatcher)(nil)

// =============================================================================
// FRAME INPUT
// =============================================================================

// HandleRaw decodes and applies one frame. Malformed frames are dropped and
// logged; the returned error wraps protocol.ErrMalformedFrame.
func (d *Dispatcher) HandleRaw(data []byte) error {
	frame, err := protocol.Decode(data)
	if err != nil {
		d.logger.Warn("dropping malformed frame",
			zap.Error(err),
			zap.String("payload", util.TruncateRunes(string(data), maxLoggedPayload)))
		return err
	}
	d.Apply(frame)
	return nil
}

// Apply applies one decoded frame.
func (d *Dispatcher) Apply(f protocol.Frame) {
	f.Accept(d)
}

// =============================================================================
// LOCAL TRANSITIONS
// =============================================================================

// SetStatus records a status produced by the connection manager. It clears
// the server-provided status detail.
func (d *Dispatcher) SetStatus(s model.ConnectionStatus) {
	d.status = s
	d.statusDetail = ""
}

// BeginExecution marks a caller-initiated send.
func (d *Dispatcher) BeginExecution() {
	d.executing = true
}

// FailExecution clears the executing flag after a failed send.
func (d *Dispatcher) FailExecution() {
	d.executing = false
}

// ResetMix returns phase, workers and progress to their initial values.
func (d *Dispatcher) ResetMix() {
	d.phase = model.PhaseInfo{}
	d.workers = make([]model.WorkerStatusEntry, 0)
	d.progress = model.Phase2Progress{}
}

// Reset clears the executing flag and all mix progress. The status is kept
// because it describes the transport, not the chat.
func (d *Dispatcher) Reset() {
	d.executing = false
	d.ResetMix()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Status returns the current status.
func (d *Dispatcher) Status() model.ConnectionStatus { return d.status }

// StatusDetail returns the annotation of the last server status frame.
func (d *Dispatcher) StatusDetail() string { return d.statusDetail }

// Executing reports whether an execution is in progress.
func (d *Dispatcher) Executing() bool { return d.executing }

// Phase returns the orchestration phase.
func (d *Dispatcher) Phase() model.PhaseInfo { return d.phase }

// Progress returns the phase-2 progress counters.
func (d *Dispatcher) Progress() model.Phase2Progress { return d.progress }

// Workers returns a copy of the worker entries in first-seen order.
func (d *Dispatcher) Workers() []model.WorkerStatusEntry {
	out := make([]model.WorkerStatusEntry, len(d.workers))
	copy(out, d.workers)
	return out
}

// =============================================================================
// VISITOR
// =============================================================================

// VisitStreaming appends or finalizes the streaming answer.
func (d *Dispatcher) VisitStreaming(f protocol.StreamingFrame) {
	d.transcript.AppendChunk(f.Chunk, f.Done)
	if !f.Done {
		return
	}
	d.executing = false
	if last, ok := d.transcript.Last(); ok {
		d.emit(last)
	}
}

// VisitStatus stores the carried status verbatim.
func (d *Dispatcher) VisitStatus(f protocol.StatusFrame) {
	d.status = f.Status
	d.statusDetail = f.Annotation()
	switch f.Status {
	case model.StatusExecuting:
		d.executing = true
	case model.StatusCompleted, model.StatusCancelled:
		d.executing = false
	}
	if !f.Status.IsKnown() {
		d.logger.Debug("server status", zap.String("status", f.Status.String()), zap.String("detail", d.statusDetail))
	}
}

// VisitError renders the error as a system message.
func (d *Dispatcher) VisitError(f protocol.ErrorFrame) {
	d.appendSystem(f.Error, true)
	d.executing = false
	d.logger.Info("server reported error", zap.String("error", f.Error))
}

// VisitPong is a liveness acknowledgement.
func (d *Dispatcher) VisitPong(protocol.PongFrame) {}

// VisitChatCreated anchors the session to the new chat.
func (d *Dispatcher) VisitChatCreated(f protocol.ChatCreatedFrame) {
	if d.session != nil {
		d.session.OnChatCreated(f.ChatID)
	}
}

// VisitChatTitleUpdated sets the title of the active chat.
func (d *Dispatcher) VisitChatTitleUpdated(f protocol.ChatTitleUpdatedFrame) {
	if d.session != nil {
		d.session.OnTitleUpdated(f.ChatID, f.Title)
	}
}

// VisitTokenWarning shows the warning as a non-error system message.
func (d *Dispatcher) VisitTokenWarning(f protocol.TokenWarningFrame) {
	d.appendSystem(f.Message, false)
	d.logger.Info("token warning", zap.Int("token_estimate", f.TokenEstimate))
}

// VisitPhaseChanged records the new phase.
func (d *Dispatcher) VisitPhaseChanged(f protocol.PhaseChangedFrame) {
	phase := f.Phase
	if phase < 0 || phase > model.MaxPhase {
		d.logger.Warn("phase out of range", zap.Int("phase", phase))
		phase = min(max(phase, 0), model.MaxPhase)
	}
	d.phase = model.PhaseInfo{Phase: phase, Description: f.Description}
	d.executing = true
}

// VisitLLMStarted adds a running worker. A category seen before is reset in
// place.
func (d *Dispatcher) VisitLLMStarted(f protocol.LLMStartedFrame) {
	entry := model.WorkerStatusEntry{
		Category: f.Category,
		Model:    f.Model,
		Status:   model.WorkerRunning,
	}
	if i := d.findWorker(f.Category); i >= 0 {
		d.workers[i] = entry
		return
	}
	d.workers = append(d.workers, entry)
}

// VisitLLMFinished completes the worker of the carried category.
func (d *Dispatcher) VisitLLMFinished(f protocol.LLMFinishedFrame) {
	i := d.findWorker(f.Category)
	if i < 0 {
		d.logger.Warn("finish for unknown worker", zap.String("category", f.Category))
		return
	}
	d.workers[i].Status = model.WorkerError
	if f.Success {
		d.workers[i].Status = model.WorkerDone
	}
	d.workers[i].Elapsed = f.Elapsed
}

// VisitPhase2Progress replaces the progress counters. Completed never moves
// backwards within one execution.
func (d *Dispatcher) VisitPhase2Progress(f protocol.Phase2ProgressFrame) {
	completed := f.Completed
	if completed < d.progress.Completed {
		d.logger.Warn("phase2 progress went backwards",
			zap.Int("completed", completed),
			zap.Int("previous", d.progress.Completed))
		completed = d.progress.Completed
	}
	d.progress = model.Phase2Progress{Completed: completed, Total: f.Total}
}

// VisitUnknown logs and ignores the frame.
func (d *Dispatcher) VisitUnknown(f protocol.UnknownFrame) {
	d.logger.Warn("ignoring unknown frame type",
		zap.String("type", f.Kind),
		zap.String("payload", util.TruncateRunes(string(f.Raw), maxLoggedPayload)))
}

func (d *Dispatcher) findWorker(category string) int {
	for i := range d.workers {
		if d.workers[i].Category == category {
			return i
		}
	}
	return -1
}

// appendSystem appends a system message, first reporting the answer it
// interrupts.
func (d *Dispatcher) appendSystem(text string, isError bool) {
	if sealed, ok := d.transcript.SealStream(); ok {
		d.emit(sealed)
	}
	d.emit(d.transcript.AppendSystem(text, isError))
}

func (d *Dispatcher) emit(msg model.ChatMessage) {
	if d.onMessage != nil {
		d.onMessage(msg)
	}
}
