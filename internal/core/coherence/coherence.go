// Package coherence contains the pure business logic of the commitment
// ledger and conflict classification: time-overlap detection,
// repetition-loop detection, strict parsing of classifier output and
// sentence patching. This is part of the Functional Core - no I/O.
package coherence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/courier/internal/core/fault"
)

// CommitmentStatus is the lifecycle state of a tracked commitment.
type CommitmentStatus string

const (
	CommitmentActive    CommitmentStatus = "active"
	CommitmentFulfilled CommitmentStatus = "fulfilled"
	CommitmentExpired   CommitmentStatus = "expired"
	CommitmentCancelled CommitmentStatus = "cancelled"
)

// Commitment is one tracked promise extracted from a reply. Linking to
// the triggering event is by identity (user id + message id), never by
// embedded back-pointers.
type Commitment struct {
	ID             string
	UserID         string
	CommitmentTime time.Time
	Activity       string
	Duration       time.Duration
	Flexibility    string
	SourceText     string
	FromMessageID  int64
	Status         CommitmentStatus
	TimesAsserted  int
}

// Window returns the occupied time span of the commitment. Commitments
// without an explicit duration block a default one-hour span.
func (c Commitment) Window() (time.Time, time.Time) {
	d := c.Duration
	if d <= 0 {
		d = time.Hour
	}
	return c.CommitmentTime, c.CommitmentTime.Add(d)
}

// Signature returns the repetition key: normalized activity plus a
// rough time phrase (date + part of day). Two assertions of "exam
// tomorrow morning" map to the same signature even when their extracted
// timestamps differ by minutes.
func (c Commitment) Signature() string {
	return Signature(c.Activity, c.CommitmentTime)
}

// Signature normalizes an activity and timestamp into a repetition key.
func Signature(activity string, t time.Time) string {
	a := strings.Join(strings.Fields(strings.ToLower(activity)), " ")
	return fmt.Sprintf("%s@%s-%s", a, t.Format("2006-01-02"), dayPart(t))
}

func dayPart(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// VerdictStatus classifies a candidate reply against the ledger.
type VerdictStatus string

const (
	VerdictOK                   VerdictStatus = "OK"
	VerdictIdentityConflict     VerdictStatus = "IDENTITY_CONFLICT"
	VerdictAvailabilityConflict VerdictStatus = "AVAILABILITY_CONFLICT"
)

// Verdict is the full record of one classification, preserved for
// diagnosis even when parsing fails.
type Verdict struct {
	UserID            string
	MessageID         int64
	InputSnapshot     string
	RawModelOutput    string
	Status            VerdictStatus
	ConflictDetail    string
	OriginalSentence  string
	CorrectedSentence string
	NewCommitments    []string
	ParseSucceeded    bool
}

// ProposedWindow is a time span the candidate reply proposes to occupy.
type ProposedWindow struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

// End returns the close of the proposed window, defaulting to one hour.
func (w ProposedWindow) End() time.Time {
	d := time.Duration(w.DurationMinutes) * time.Minute
	if d <= 0 {
		d = time.Hour
	}
	return w.Start.Add(d)
}

// ModelOutput is the strict schema the classification collaborator must
// produce. Unknown fields are rejected so drift in the collaborator's
// output is caught as a ParseFailure instead of silently ignored.
type ModelOutput struct {
	ProposedWindows   []ProposedWindow `json:"proposed_windows"`
	AssertedActivity  string           `json:"asserted_activity"`
	AssertedTime      *time.Time       `json:"asserted_time"`
	OriginalSentence  string           `json:"original_sentence"`
	CorrectedSentence string           `json:"corrected_sentence"`
	NewCommitments    []NewCommitment  `json:"new_commitments"`
}

// NewCommitment is one commitment the classifier extracted from the
// candidate reply.
type NewCommitment struct {
	Activity        string    `json:"activity"`
	Time            time.Time `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Flexibility     string    `json:"flexibility"`
	SourceText      string    `json:"source_text"`
}

// ParseModelOutput decodes raw classifier output against the strict
// schema. Any malformed or trailing content yields a wrapped
// fault.ErrParse; callers record the raw output and apply the
// documented fail-open default.
func ParseModelOutput(raw string) (ModelOutput, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var out ModelOutput
	if err := dec.Decode(&out); err != nil {
		return ModelOutput{}, fmt.Errorf("%w: %v", fault.ErrParse, err)
	}
	// Reject trailing garbage after the document.
	if dec.More() {
		return ModelOutput{}, fmt.Errorf("%w: trailing content", fault.ErrParse)
	}
	return out, nil
}

// Policy holds the classification thresholds.
type Policy struct {
	// OverlapBuffer widens commitment windows before the overlap check.
	// The default (zero) flags any positive overlap.
	OverlapBuffer time.Duration
	// RepetitionThreshold is the occurrence count, including the
	// current reply, at which a repeated unresolved assertion becomes
	// an identity conflict.
	RepetitionThreshold int
	// ExpiryGrace is how far past its time an active commitment may be
	// before the sweep marks it expired.
	ExpiryGrace time.Duration
}

// DefaultPolicy mirrors the documented defaults.
var DefaultPolicy = Policy{
	OverlapBuffer:       0,
	RepetitionThreshold: 3,
	ExpiryGrace:         time.Hour,
}

// Overlaps reports whether the proposed window collides with the
// commitment's occupied span, widened by the buffer.
func Overlaps(w ProposedWindow, c Commitment, buffer time.Duration) bool {
	start, end := c.Window()
	start = start.Add(-buffer)
	end = end.Add(buffer)
	return w.Start.Before(end) && start.Before(w.End())
}

// Classify applies the conflict rules to a parsed classifier output.
// Availability conflicts (hard time collisions) take precedence over
// identity conflicts (repetition loops).
func Classify(out ModelOutput, active []Commitment, policy Policy) (VerdictStatus, string) {
	for _, w := range out.ProposedWindows {
		for _, c := range active {
			if c.Status != CommitmentActive {
				continue
			}
			if Overlaps(w, c, policy.OverlapBuffer) {
				s, e := c.Window()
				detail := fmt.Sprintf("proposed %s overlaps %q (%s-%s)",
					w.Start.Format(time.RFC3339), c.Activity,
					s.Format("15:04"), e.Format("15:04"))
				return VerdictAvailabilityConflict, detail
			}
		}
	}
	if out.AssertedActivity != "" && out.AssertedTime != nil {
		sig := Signature(out.AssertedActivity, *out.AssertedTime)
		for _, c := range active {
			if c.Status != CommitmentActive || c.Signature() != sig {
				continue
			}
			if c.TimesAsserted+1 >= policy.RepetitionThreshold {
				detail := fmt.Sprintf("%q asserted %d times without resolution", out.AssertedActivity, c.TimesAsserted+1)
				return VerdictIdentityConflict, detail
			}
		}
	}
	return VerdictOK, ""
}

// PatchSentence replaces the first verbatim occurrence of original with
// corrected. The second return is false when the original sentence is
// absent, in which case the caller must surface the conflict unresolved
// instead of silently dropping it.
func PatchSentence(text, original, corrected string) (string, bool) {
	if original == "" || !strings.Contains(text, original) {
		return text, false
	}
	return strings.Replace(text, original, corrected, 1), true
}

// ShouldExpire reports whether the sweep should mark the commitment
// expired: still active and past its time by more than the grace
// window.
func ShouldExpire(c Commitment, now time.Time, grace time.Duration) bool {
	return c.Status == CommitmentActive && now.Sub(c.CommitmentTime) > grace
}

// BuildSnapshot renders the classifier input: active commitments
// ordered by time, the candidate reply and the current time. The
// snapshot is stored on the verdict so conflicts can be re-examined
// later against exactly what the classifier saw.
func BuildSnapshot(active []Commitment, candidate string, now time.Time) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "now: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&buf, "candidate: %s\n", candidate)
	buf.WriteString("commitments:\n")
	for _, c := range active {
		s, e := c.Window()
		fmt.Fprintf(&buf, "- %s (%s-%s, flexibility=%s, asserted=%d)\n",
			c.Activity, s.Format(time.RFC3339), e.Format("15:04"), c.Flexibility, c.TimesAsserted)
	}
	return buf.String()
}
