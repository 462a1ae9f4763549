package transcription

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services/llm"
	"meetsync/internal/transcript"
)

const speakerSystemPrompt = `You are an expert linguistic analyst specialised in transcript diarization.
Identify the real names of the speakers in the conversation you are given.

Rules:
1. Prefer explicit introductions such as "Hi, this is Alex".
2. Use direct address where one speaker names another, and never confuse the speaker with the person they are talking to.
3. When no name is mentioned, infer a role from context such as "Client" or "Interviewer".
4. When you cannot identify a name or role with confidence, return the original label unchanged.

Respond with a JSON object mapping each speaker label to a name, for example
{"SPEAKER_00": "Alex", "SPEAKER_01": "Client"}. Return only the JSON object.`

// NormalizeName trims and title-cases a human supplied speaker name.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.Und, cases.NoLower).String(name)
}

// proposeSpeakers asks the completer for a slot to name mapping. Failures are
// logged and produce an empty proposal; the human review covers the gap.
func (s *Supervisor) proposeSpeakers(ctx context.Context, job *queue.Job, blocks []queue.Block) map[string]string {
	slots := transcript.Speakers(blocks)
	if s.completer == nil || len(slots) == 0 {
		return map[string]string{}
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Meeting: %s\n", job.MeetingTitle)
	fmt.Fprintf(&user, "Current speaker labels: %s\n\n", strings.Join(slots, ", "))
	user.WriteString(transcript.Excerpt(blocks))

	content, err := s.completer.CompleteJSON(ctx, speakerSystemPrompt, llm.TrimInput(user.String(), s.maxTokens))
	if err != nil {
		logging.WarnWithContext(s.logger, "speaker identification failed", "speaker_identification_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "review starts with raw speaker labels"),
			logging.String(logging.FieldErrorHint, "rename speakers manually in the review prompt"),
		)
		return map[string]string{}
	}
	var proposed map[string]string
	if err := llm.DecodeLLMJSON(content, &proposed); err != nil {
		logging.WarnWithContext(s.logger, "speaker identification returned invalid JSON", "speaker_identification_invalid",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "review starts with raw speaker labels"),
		)
		return map[string]string{}
	}
	return filterProposal(slots, proposed)
}

// filterProposal keeps names for known slots only and drops entries that
// merely repeat the slot label.
func filterProposal(slots []string, proposed map[string]string) map[string]string {
	known := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		known[slot] = struct{}{}
	}
	out := make(map[string]string, len(proposed))
	for slot, name := range proposed {
		if _, ok := known[slot]; !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, slot) || strings.EqualFold(name, transcript.UnknownSpeaker) {
			continue
		}
		out[slot] = name
	}
	return out
}
