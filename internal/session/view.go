package session

import (
	"context"
	"time"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/aggregate"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/reconcile"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/results"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/verify"
)

// recordDomains are the domains that can supply the form, in precedence
// order. At most one is populated at a time except transiently.
var recordDomains = []reconcile.Domain{
	reconcile.DomainExtraction,
	reconcile.DomainMultipage,
	reconcile.DomainBatch,
}

func isRecordDomain(d reconcile.Domain) bool {
	for _, rd := range recordDomains {
		if rd == d {
			return true
		}
	}
	return false
}

// sourceDomain returns the domain whose units make up the form.
func (s *Session) sourceDomain() (reconcile.Domain, bool) {
	for _, d := range recordDomains {
		if set, ok := s.st.sets[d]; ok && len(s.st.stores[d].AllFor(set)) > 0 {
			return d, true
		}
	}
	return "", false
}

// record merges the units of domain in the active template. The result is
// cached until the domain's revision or the template changes.
func (s *Session) record(d reconcile.Domain) (*aggregate.Record, error) {
	set := s.st.sets[d]
	rev := s.st.stores[d].Revision(set)
	if c := s.st.cache[d]; c != nil && c.revision == rev && c.template == s.st.template {
		return c.record, nil
	}
	rec, err := s.engine.Merge(s.st.template, s.st.stores[d].AllFor(set))
	if err != nil {
		return nil, err
	}
	s.st.cache[d] = &cachedRecord{revision: rev, template: s.st.template, record: rec}
	return rec, nil
}

// baseRecord is the merged record of the source domain, or an empty form,
// with carried values filling its empty fields.
func (s *Session) baseRecord() (*aggregate.Record, error) {
	var rec *aggregate.Record
	var err error
	if d, ok := s.sourceDomain(); ok {
		rec, err = s.record(d)
	} else {
		rec, err = s.engine.Merge(s.st.template, nil)
	}
	if err != nil {
		return nil, err
	}
	if len(s.st.carried) > 0 {
		rec = rec.Fill(s.st.carried)
	}
	return rec, nil
}

// effectiveRecord is the visible form: the base record with overrides
// applied.
func (s *Session) effectiveRecord() (*aggregate.Record, error) {
	rec, err := s.baseRecord()
	if err != nil {
		return nil, err
	}
	return rec.Effective(s.st.overrides), nil
}

// UnitView describes one stored unit.
type UnitView struct {
	Key            string `json:"key" yaml:"key"`
	Failed         bool   `json:"failed" yaml:"failed"`
	FailureReason  string `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	Fields         int    `json:"fields" yaml:"fields"`
	DetectionCount *int   `json:"detection_count,omitempty" yaml:"detection_count,omitempty"`
	HasOverlay     bool   `json:"has_overlay,omitempty" yaml:"has_overlay,omitempty"`
}

func unitView(u *results.UnitResult) UnitView {
	v := UnitView{
		Key:           u.Key(),
		Failed:        u.Failed(),
		FailureReason: u.FailureReason(),
		Fields:        len(u.FieldIDs()),
		HasOverlay:    u.Overlay() != "",
	}
	if n, ok := u.DetectionCount(); ok {
		v.DetectionCount = &n
	}
	return v
}

// DomainView is the state of one domain.
type DomainView struct {
	State reconcile.State `json:"state" yaml:"state"`
	Units []UnitView      `json:"units,omitempty" yaml:"units,omitempty"`
	Stats *results.Stats  `json:"stats,omitempty" yaml:"stats,omitempty"`
	Error string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// View is a consistent snapshot of the session.
type View struct {
	SessionID           string                          `json:"session_id" yaml:"session_id"`
	Template            string                          `json:"template" yaml:"template"`
	Documents           []string                        `json:"documents" yaml:"documents"`
	Source              reconcile.Domain                `json:"source,omitempty" yaml:"source,omitempty"`
	Record              *aggregate.Record               `json:"record" yaml:"record"`
	Summary             aggregate.Summary               `json:"summary" yaml:"summary"`
	Overrides           map[schema.FieldID]string       `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Domains             map[reconcile.Domain]DomainView `json:"domains" yaml:"domains"`
	Progress            *Progress                       `json:"progress,omitempty" yaml:"progress,omitempty"`
	Verification        *verify.Outcome                 `json:"verification,omitempty" yaml:"verification,omitempty"`
	VerificationSummary *verify.Summary                 `json:"verification_summary,omitempty" yaml:"verification_summary,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot(ctx context.Context) (*View, error) {
	var v *View
	var err error
	doErr := s.do(ctx, func() { v, err = s.snapshot() })
	if doErr != nil {
		return nil, doErr
	}
	return v, err
}

func (s *Session) snapshot() (*View, error) {
	tmpl, err := s.registry.Resolve(s.st.template)
	if err != nil {
		return nil, err
	}
	rec, err := s.effectiveRecord()
	if err != nil {
		return nil, err
	}

	v := &View{
		SessionID: s.ID(),
		Template:  s.st.template,
		Documents: make([]string, 0, len(s.st.docs)),
		Record:    rec,
		Summary:   aggregate.Summarize(rec, tmpl),
		Domains:   make(map[reconcile.Domain]DomainView, len(reconcile.AllDomains)),
	}
	for _, d := range s.st.docs {
		v.Documents = append(v.Documents, d.Name)
	}
	if d, ok := s.sourceDomain(); ok {
		v.Source = d
	}
	if len(s.st.overrides) > 0 {
		v.Overrides = make(map[schema.FieldID]string, len(s.st.overrides))
		for id, val := range s.st.overrides {
			v.Overrides[id] = val
		}
	}

	states := s.ctrl.States()
	for _, d := range reconcile.AllDomains {
		dv := DomainView{State: states[d], Error: s.st.errs[d]}
		if store, ok := s.st.stores[d]; ok {
			set := s.st.sets[d]
			for _, u := range store.AllFor(set) {
				dv.Units = append(dv.Units, unitView(u))
			}
			if len(dv.Units) > 0 {
				stats := store.Stats(set)
				dv.Stats = &stats
			}
		}
		v.Domains[d] = dv
	}
	if s.st.progress.Total > 0 {
		p := s.st.progress
		v.Progress = &p
	}
	if s.st.outcome != nil {
		v.Verification = s.st.outcome
		sum := s.st.outcome.Summary()
		v.VerificationSummary = &sum
	}
	return v, nil
}

// Export is the saved form of a session's results.
type Export struct {
	Type                string                      `json:"type" yaml:"type"`
	SessionID           string                      `json:"session_id" yaml:"session_id"`
	Template            string                      `json:"template" yaml:"template"`
	Documents           []string                    `json:"documents" yaml:"documents"`
	FormData            map[schema.FieldID]string   `json:"form_data" yaml:"form_data"`
	Confidence          map[schema.FieldID]*float64 `json:"confidence" yaml:"confidence"`
	Units               []UnitView                  `json:"units,omitempty" yaml:"units,omitempty"`
	Stats               *results.Stats              `json:"stats,omitempty" yaml:"stats,omitempty"`
	Verification        *verify.Outcome             `json:"verification,omitempty" yaml:"verification,omitempty"`
	VerificationSummary *verify.Summary             `json:"verification_summary,omitempty" yaml:"verification_summary,omitempty"`
	Timestamp           time.Time                   `json:"timestamp" yaml:"timestamp"`
}

// Export returns the session's results for saving. Type names the source
// domain, or "manual" when the form holds only overrides.
func (s *Session) Export(ctx context.Context) (*Export, error) {
	var e *Export
	var err error
	doErr := s.do(ctx, func() {
		var v *View
		if v, err = s.snapshot(); err != nil {
			return
		}
		e = &Export{
			Type:                string(v.Source),
			SessionID:           v.SessionID,
			Template:            v.Template,
			Documents:           v.Documents,
			FormData:            v.Record.Values,
			Confidence:          v.Record.Confidence,
			Verification:        v.Verification,
			VerificationSummary: v.VerificationSummary,
			Timestamp:           time.Now().UTC(),
		}
		if e.Type == "" {
			e.Type = "manual"
		} else {
			dv := v.Domains[v.Source]
			e.Units, e.Stats = dv.Units, dv.Stats
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return e, err
}
