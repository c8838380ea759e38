package processor

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/agentic-hq/core/pkg/models"
)

// evaluateConditionalStep decodes the step's branch table and projects the
// branch matching the current time of day (in the business timezone) into an
// outgoing payload.
func (p *Processor) evaluateConditionalStep(step *models.Step) models.OutgoingPayload {
	if step.Metadata == nil {
		return models.OutgoingPayload{}
	}

	var meta models.ConditionalTimeMetadata
	if err := json.Unmarshal(step.Metadata, &meta); err != nil {
		slog.Error("Invalid CONDITIONAL_TIME metadata", "step_id", step.ID, "error", err)
		return models.OutgoingPayload{}
	}

	now := p.now().In(p.zone)
	nowMinutes := now.Hour()*60 + now.Minute()
	slog.Info("Conditional time check", "current_minutes", nowMinutes)

	return evaluateConditional(meta, nowMinutes)
}

// evaluateConditional picks the first branch whose window contains
// nowMinutes, falling back to the fallback branch when none matches.
func evaluateConditional(meta models.ConditionalTimeMetadata, nowMinutes int) models.OutgoingPayload {
	var payload models.OutgoingPayload

	for _, branch := range meta.Branches {
		start, okS := parseClock(branch.StartTime)
		end, okE := parseClock(branch.EndTime)
		if !okS || !okE {
			continue
		}
		if windowContains(start, end, nowMinutes) {
			slog.Info("Matched time branch",
				"start", branch.StartTime, "end", branch.EndTime)
			applyBranch(&payload, branch.Type, branch.Content, branch.MediaURL)
			return payload
		}
	}

	if meta.Fallback != nil {
		slog.Info("No time match found, using fallback")
		applyBranch(&payload, meta.Fallback.Type, meta.Fallback.Content, meta.Fallback.MediaURL)
	}
	return payload
}

// windowContains reports whether nowMinutes falls inside [start, end). A
// start at or past the end denotes a window crossing midnight, e.g.
// 22:00-06:00.
func windowContains(start, end, nowMinutes int) bool {
	if start < end {
		return nowMinutes >= start && nowMinutes < end
	}
	return nowMinutes >= start || nowMinutes < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}

// applyBranch projects a selected branch into the payload using the same
// TEXT/IMAGE/AUDIO rules as top-level steps, except that audio inside a
// conditional is always push-to-talk. Unknown branch types are ignored.
func applyBranch(payload *models.OutgoingPayload, branchType string, content, mediaURL *string) {
	switch branchType {
	case string(models.StepTypeText):
		payload.Text = content
	case string(models.StepTypeImage):
		if mediaURL != nil {
			payload.Image = &models.MediaPayload{URL: *mediaURL}
			payload.Caption = content
		}
	case string(models.StepTypeAudio):
		if mediaURL != nil {
			ptt := true
			payload.Audio = &models.MediaPayload{URL: *mediaURL}
			payload.PTT = &ptt
		}
	}
}
