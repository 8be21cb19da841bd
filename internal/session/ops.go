package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/ingest"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/reconcile"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/results"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

// SingleOptions selects the document and mode of a single extraction.
type SingleOptions struct {
	// Document is the file name to extract; empty means the first upload.
	Document string
	// Page is the 1-indexed PDF page; 0 means the first page.
	Page int
	// WithDetection also returns the confidence overlay and populates the
	// detection domain.
	WithDetection bool
}

// Progress counts completed batch units.
type Progress struct {
	Processed int `json:"processed" yaml:"processed"`
	Total     int `json:"total" yaml:"total"`
}

func checkDocs(docs []*ingest.Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: no documents", ErrEmptyInput)
	}
	for _, d := range docs {
		if d == nil || len(d.Data) == 0 {
			return fmt.Errorf("%w: empty document", ErrEmptyInput)
		}
	}
	return nil
}

// Upload replaces the uploaded file set and clears every domain and the
// user overrides.
func (s *Session) Upload(ctx context.Context, docs ...*ingest.Document) error {
	return s.replaceDocs(ctx, reconcile.TriggerUpload, docs)
}

// CameraCapture replaces the file set with one captured image.
func (s *Session) CameraCapture(ctx context.Context, doc *ingest.Document) error {
	return s.replaceDocs(ctx, reconcile.TriggerCameraCapture, []*ingest.Document{doc})
}

func (s *Session) replaceDocs(ctx context.Context, trigger reconcile.Trigger, docs []*ingest.Document) error {
	if err := checkDocs(docs); err != nil {
		return err
	}
	var err error
	doErr := s.do(ctx, func() {
		if _, err = s.ctrl.Fire(trigger); err != nil {
			return
		}
		s.st.docs = append([]*ingest.Document(nil), docs...)
		s.st.overrides = make(map[schema.FieldID]string)
		s.st.carried = nil
		s.logger.Info("documents uploaded", "count", len(docs), "trigger", trigger)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// RemoveFile drops one uploaded document and every unit extracted from it.
// Results of other documents are kept; the verification outcome, made
// against the previous record, is cleared.
func (s *Session) RemoveFile(ctx context.Context, name string) error {
	var err error
	doErr := s.do(ctx, func() {
		idx := -1
		for i, d := range s.st.docs {
			if d.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			err = fmt.Errorf("%w: %s", ErrNoSuchUnit, name)
			return
		}
		doc := s.st.docs[idx]
		s.st.docs = append(s.st.docs[:idx:idx], s.st.docs[idx+1:]...)

		removed := 0
		for _, d := range extractionDomains {
			store, set := s.st.stores[d], s.st.sets[d]
			if d == reconcile.DomainBatch {
				for key, src := range s.st.sources[d] {
					if src.doc.ID != doc.ID {
						continue
					}
					_, filled := store.Get(set, key)
					if store.Remove(set, key) {
						removed++
						s.st.progress.Total--
						if filled {
							s.st.progress.Processed--
						}
					}
					delete(s.st.sources[d], key)
				}
				continue
			}
			if set != doc.ID.String() {
				continue
			}
			for _, u := range store.AllFor(set) {
				if store.Remove(set, u.Key()) {
					removed++
				}
			}
			delete(s.st.sources, d)
		}
		if removed > 0 {
			if _, err = s.ctrl.Fire(reconcile.TriggerRetry); err != nil {
				return
			}
		}
		s.logger.Info("document removed", "name", name, "units", removed)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// ChangeTemplate switches the active template and clears the extraction
// domains. Overrides are remapped into the new template. The merged values
// are remapped too and carried: they fill empty fields only until the next
// extraction result arrives.
func (s *Session) ChangeTemplate(ctx context.Context, templateID string) error {
	if _, err := s.registry.Resolve(templateID); err != nil {
		return err
	}
	var err error
	doErr := s.do(ctx, func() {
		from := s.st.template
		if from == templateID {
			return
		}
		base, mergeErr := s.baseRecord()
		if mergeErr != nil {
			err = mergeErr
			return
		}
		carried := make(map[schema.FieldID]string)
		for id, v := range base.NonEmpty() {
			carried[s.registry.MapFieldID(id, from, templateID)] = v
		}
		overrides := make(map[schema.FieldID]string, len(s.st.overrides))
		for id, v := range s.st.overrides {
			overrides[s.registry.MapFieldID(id, from, templateID)] = v
		}

		if _, err = s.ctrl.Fire(reconcile.TriggerTemplateChange); err != nil {
			return
		}
		s.st.template = templateID
		s.st.carried = carried
		s.st.overrides = overrides
		s.logger.Info("template changed", "from", from, "to", templateID, "carried", len(carried), "overrides", len(overrides))
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// ExtractSingle extracts one document into the extraction domain.
func (s *Session) ExtractSingle(ctx context.Context, opts SingleOptions) error {
	var err error
	doErr := s.do(ctx, func() {
		doc, ok := s.st.document(opts.Document)
		if !ok {
			err = fmt.Errorf("%w: no document %q", ErrEmptyInput, opts.Document)
			return
		}
		tmpl, resolveErr := s.registry.Resolve(s.st.template)
		if resolveErr != nil {
			err = resolveErr
			return
		}
		extractOpts := providers.ExtractOptions{
			Language:         tmpl.LangCode,
			IncludeDetection: opts.WithDetection,
			PageNumber:       opts.Page,
		}

		trigger := reconcile.TriggerStartSingle
		if opts.WithDetection {
			trigger = reconcile.TriggerStartDetection
		}
		if _, err = s.ctrl.Fire(trigger); err != nil {
			return
		}

		src := unitSource{doc: doc, opts: extractOpts, seq: s.st.next()}
		var extTok, detTok reconcile.Token
		if opts.WithDetection {
			extTok = s.ctrl.Current(reconcile.DomainExtraction)
			detTok = s.ctrl.Begin(reconcile.DomainDetection)
			s.st.sets[reconcile.DomainDetection] = doc.ID.String()
			s.st.source(reconcile.DomainDetection, doc.Name, src)
		} else {
			extTok = s.ctrl.Begin(reconcile.DomainExtraction)
		}
		s.st.sets[reconcile.DomainExtraction] = doc.ID.String()
		s.st.source(reconcile.DomainExtraction, doc.Name, src)

		s.startExtract(reconcile.DomainExtraction, extTok, detTok, doc.Name, tmpl.ID, src)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// startExtract dispatches one /extract call. With IncludeDetection the
// overlay is also filed in the detection domain. A result is dropped when
// its token is stale or a later dispatch for the same key exists. Called on
// the loop.
func (s *Session) startExtract(domain reconcile.Domain, tok, detTok reconcile.Token, key, templateID string, src unitSource) {
	doc, opts, seq := src.doc, src.opts, src.seq
	setID := s.st.sets[domain]
	s.logger.Debug("dispatching extraction", "domain", domain, "key", key, "token", tok)
	s.dispatch(1)
	go func() {
		res, err := s.service.Extract(s.ctx, doc, opts)
		s.complete(func() {
			if !s.st.hasDocument(doc.ID) {
				s.logger.Debug("dropping result for removed document", "key", key)
				return
			}
			if s.st.latest(domain, key, seq) && s.ctrl.Populate(domain, tok) {
				if putErr := s.st.put(domain, extractUnit(key, setID, templateID, res, err)); putErr != nil {
					s.logger.Warn("failed to store unit", "key", key, "error", putErr)
				}
				if err != nil {
					s.logger.Warn("extraction failed", "domain", domain, "key", key, "error", err)
				}
			} else {
				s.logger.Debug("dropping superseded extraction", "domain", domain, "key", key)
			}
			det := reconcile.DomainDetection
			if opts.IncludeDetection && s.st.latest(det, key, seq) && s.ctrl.Populate(det, detTok) {
				if putErr := s.st.put(det, detectionUnit(key, doc.ID.String(), templateID, res, err)); putErr != nil {
					s.logger.Warn("failed to store detection", "key", key, "error", putErr)
				}
			}
		})
	}()
}

// ExtractMultipage extracts every page of a PDF into the multipage domain.
func (s *Session) ExtractMultipage(ctx context.Context, document string) error {
	var err error
	doErr := s.do(ctx, func() {
		doc, ok := s.st.document(document)
		if !ok {
			err = fmt.Errorf("%w: no document %q", ErrEmptyInput, document)
			return
		}
		if doc.Kind != ingest.KindPDF {
			err = fmt.Errorf("%w: %s", ErrNotPaged, doc.Name)
			return
		}
		tmpl, resolveErr := s.registry.Resolve(s.st.template)
		if resolveErr != nil {
			err = resolveErr
			return
		}
		if _, err = s.ctrl.Fire(reconcile.TriggerStartMultipage); err != nil {
			return
		}
		tok := s.ctrl.Begin(reconcile.DomainMultipage)
		s.st.sets[reconcile.DomainMultipage] = doc.ID.String()
		seq := s.st.next()
		s.st.source(reconcile.DomainMultipage, allPagesKey(doc.Name), unitSource{doc: doc, opts: providers.ExtractOptions{Language: tmpl.LangCode}, seq: seq})
		s.startMultipage(tok, seq, doc, tmpl)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func pageKey(name string, page int) string { return fmt.Sprintf("%s#p%d", name, page) }
func allPagesKey(name string) string      { return name + "#all" }

func (s *Session) startMultipage(tok reconcile.Token, seq uint64, doc *ingest.Document, tmpl *schema.Template) {
	domain := reconcile.DomainMultipage
	setID := s.st.sets[domain]
	s.logger.Debug("dispatching multipage extraction", "document", doc.Name, "pages", doc.Pages, "token", tok)
	s.dispatch(1)
	go func() {
		res, err := s.service.ExtractAllPages(s.ctx, doc, tmpl.LangCode)
		s.complete(func() {
			if !s.st.hasDocument(doc.ID) || !s.st.latest(domain, allPagesKey(doc.Name), seq) || !s.ctrl.Populate(domain, tok) {
				s.logger.Debug("dropping superseded multipage result", "document", doc.Name)
				return
			}
			store := s.st.stores[domain]
			if err != nil {
				s.st.errs[domain] = err.Error()
				_ = s.st.put(domain, results.Failure(allPagesKey(doc.Name), setID, tmpl.ID, err.Error()))
				s.logger.Warn("multipage extraction failed", "document", doc.Name, "error", err)
				return
			}
			store.Remove(setID, allPagesKey(doc.Name))
			delete(s.st.errs, domain)
			for _, page := range res.Pages {
				_ = s.st.put(domain, pageUnit(pageKey(doc.Name, page.PageNumber), setID, tmpl.ID, page))
			}
			s.logger.Info("multipage extraction complete", "document", doc.Name, "pages", len(res.Pages), "total", res.TotalPages)
		})
	}()
}

// ProcessBatch extracts every uploaded document into the batch domain. At
// most BatchFanout calls run at once; unit order follows upload order
// regardless of completion order.
func (s *Session) ProcessBatch(ctx context.Context) error {
	var err error
	doErr := s.do(ctx, func() {
		if len(s.st.docs) == 0 {
			err = fmt.Errorf("%w: no documents", ErrEmptyInput)
			return
		}
		tmpl, resolveErr := s.registry.Resolve(s.st.template)
		if resolveErr != nil {
			err = resolveErr
			return
		}
		if _, err = s.ctrl.Fire(reconcile.TriggerStartBatch); err != nil {
			return
		}
		domain := reconcile.DomainBatch
		tok := s.ctrl.Begin(domain)
		setID := uuid.New().String()
		s.st.sets[domain] = setID

		docs := append([]*ingest.Document(nil), s.st.docs...)
		opts := providers.ExtractOptions{Language: tmpl.LangCode}
		seq := s.st.next()
		keys := make([]string, len(docs))
		for i, doc := range docs {
			keys[i] = batchKey(i, doc.Name)
			s.st.stores[domain].Reserve(setID, keys[i])
			s.st.source(domain, keys[i], unitSource{doc: doc, opts: opts, seq: seq})
		}
		s.st.progress = Progress{Total: len(docs)}

		fanout := s.BatchFanout()
		s.logger.Info("starting batch", "documents", len(docs), "fanout", fanout, "token", tok)
		s.dispatch(len(docs))
		go func() {
			g, gctx := errgroup.WithContext(s.ctx)
			g.SetLimit(fanout)
			for i, doc := range docs {
				key, doc := keys[i], doc
				g.Go(func() error {
					res, callErr := s.service.Extract(gctx, doc, opts)
					s.complete(func() { s.applyBatch(tok, seq, setID, key, doc, tmpl.ID, res, callErr) })
					return nil
				})
			}
			_ = g.Wait()
		}()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func batchKey(i int, name string) string { return fmt.Sprintf("%d:%s", i+1, name) }

// applyBatch stores one batch completion. Progress counts a slot once, the
// first time it is filled.
func (s *Session) applyBatch(tok reconcile.Token, seq uint64, setID, key string, doc *ingest.Document, templateID string, res *providers.ExtractResult, err error) {
	domain := reconcile.DomainBatch
	if !s.st.hasDocument(doc.ID) || !s.st.latest(domain, key, seq) || !s.ctrl.Populate(domain, tok) {
		s.logger.Debug("dropping superseded batch result", "key", key)
		return
	}
	_, filled := s.st.stores[domain].Get(setID, key)
	if putErr := s.st.put(domain, extractUnit(key, setID, templateID, res, err)); putErr != nil {
		s.logger.Warn("failed to store unit", "key", key, "error", putErr)
		return
	}
	if !filled {
		s.st.progress.Processed++
	}
	if err != nil {
		s.logger.Warn("batch item failed", "key", key, "error", err)
	}
	s.logger.Debug("batch progress", "processed", s.st.progress.Processed, "total", s.st.progress.Total)
}

// DetectOnly runs text detection on a document into the detection domain.
func (s *Session) DetectOnly(ctx context.Context, document string, page int) error {
	var err error
	doErr := s.do(ctx, func() {
		doc, ok := s.st.document(document)
		if !ok {
			err = fmt.Errorf("%w: no document %q", ErrEmptyInput, document)
			return
		}
		if _, err = s.ctrl.Fire(reconcile.TriggerStartDetection); err != nil {
			return
		}
		tok := s.ctrl.Begin(reconcile.DomainDetection)
		s.st.sets[reconcile.DomainDetection] = doc.ID.String()
		seq := s.st.next()
		s.st.source(reconcile.DomainDetection, doc.Name, unitSource{doc: doc, opts: providers.ExtractOptions{PageNumber: page}, seq: seq})
		s.startDetect(tok, seq, doc.Name, doc, page)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) startDetect(tok reconcile.Token, seq uint64, key string, doc *ingest.Document, page int) {
	domain := reconcile.DomainDetection
	setID := s.st.sets[domain]
	templateID := s.st.template
	s.dispatch(1)
	go func() {
		res, err := s.service.Detect(s.ctx, doc, page)
		s.complete(func() {
			if !s.st.hasDocument(doc.ID) || !s.st.latest(domain, key, seq) || !s.ctrl.Populate(domain, tok) {
				s.logger.Debug("dropping superseded detection", "key", key)
				return
			}
			p := results.Params{Key: key, DocumentID: setID, TemplateID: templateID}
			if err != nil {
				p.Failed, p.FailureReason = true, err.Error()
				s.logger.Warn("detection failed", "key", key, "error", err)
			} else {
				n := res.TotalDetections
				p.Overlay, p.DetectionCount = res.ConfidenceOverlay, &n
			}
			_ = s.st.put(domain, results.NewUnit(p))
		})
	}()
}

// Retry re-dispatches one unit, or the whole document for multipage units.
// Only the verification domain is cleared; the retried unit replaces the
// old one in place.
func (s *Session) Retry(ctx context.Context, key string) error {
	var err error
	doErr := s.do(ctx, func() {
		domain, src, ok := s.findSource(key)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrNoSuchUnit, key)
			return
		}
		if _, err = s.ctrl.Fire(reconcile.TriggerRetry); err != nil {
			return
		}
		tok := s.ctrl.Current(domain)
		src.seq = s.st.next()
		s.logger.Info("retrying unit", "domain", domain, "key", key)

		switch domain {
		case reconcile.DomainMultipage:
			tmpl, resolveErr := s.registry.Resolve(s.st.template)
			if resolveErr != nil {
				err = resolveErr
				return
			}
			s.st.source(domain, allPagesKey(src.doc.Name), src)
			s.startMultipage(tok, src.seq, src.doc, tmpl)
		case reconcile.DomainDetection:
			s.st.source(domain, key, src)
			s.startDetect(tok, src.seq, key, src.doc, src.opts.PageNumber)
		case reconcile.DomainBatch:
			s.st.source(domain, key, src)
			s.dispatch(1)
			setID := s.st.sets[domain]
			templateID := s.st.template
			go func() {
				res, callErr := s.service.Extract(s.ctx, src.doc, src.opts)
				s.complete(func() { s.applyBatch(tok, src.seq, setID, key, src.doc, templateID, res, callErr) })
			}()
		default:
			s.st.source(domain, key, src)
			var detTok reconcile.Token
			if src.opts.IncludeDetection {
				if _, ok := s.st.sources[reconcile.DomainDetection][key]; ok {
					s.st.source(reconcile.DomainDetection, key, src)
				}
				detTok = s.ctrl.Current(reconcile.DomainDetection)
			}
			s.startExtract(domain, tok, detTok, key, s.st.template, src)
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// findSource locates the domain and dispatch source of a unit key. Page
// keys of a multipage document resolve to the whole document.
func (s *Session) findSource(key string) (reconcile.Domain, unitSource, bool) {
	for _, d := range extractionDomains {
		if src, ok := s.st.sources[d][key]; ok {
			return d, src, true
		}
	}
	if i := strings.LastIndex(key, "#"); i > 0 {
		if src, ok := s.st.sources[reconcile.DomainMultipage][allPagesKey(key[:i])]; ok {
			return reconcile.DomainMultipage, src, true
		}
	}
	return "", unitSource{}, false
}

// SetField records a user override. Overrides win over extracted values.
func (s *Session) SetField(ctx context.Context, id schema.FieldID, value string) error {
	return s.do(ctx, func() { s.st.overrides[id] = value })
}

// ClearField removes a user override.
func (s *Session) ClearField(ctx context.Context, id schema.FieldID) error {
	return s.do(ctx, func() { delete(s.st.overrides, id) })
}

// Verify submits values for comparison against a document. A nil submitted
// map submits the visible form. Preconditions are checked before the
// verification domain is cleared.
func (s *Session) Verify(ctx context.Context, document string, submitted map[schema.FieldID]string) error {
	var err error
	doErr := s.do(ctx, func() {
		doc, ok := s.st.document(document)
		if !ok {
			err = fmt.Errorf("%w: no document %q", ErrEmptyInput, document)
			return
		}
		if submitted == nil {
			rec, mergeErr := s.effectiveRecord()
			if mergeErr != nil {
				err = mergeErr
				return
			}
			submitted = rec.Values
		}
		if !hasValue(submitted) {
			err = fmt.Errorf("%w: no field values", ErrEmptyInput)
			return
		}
		fields := make(map[schema.FieldID]string, len(submitted))
		for id, v := range submitted {
			fields[id] = v
		}

		domain := reconcile.DomainVerification
		tok := s.ctrl.Begin(domain)
		s.st.submitted = fields
		s.logger.Debug("dispatching verification", "document", doc.Name, "fields", len(fields), "token", tok)
		s.dispatch(1)
		go func() {
			out, callErr := s.verifier.Verify(s.ctx, doc, fields)
			s.complete(func() {
				if !s.ctrl.Accept(domain, tok) {
					return
				}
				if callErr != nil {
					s.st.errs[domain] = callErr.Error()
					s.logger.Warn("verification failed", "document", doc.Name, "error", callErr)
					return
				}
				s.ctrl.Populate(domain, tok)
				s.st.outcome = out
				sum := out.Summary()
				s.logger.Info("verification complete", "matched", sum.Matched, "total", sum.Total, "passed", sum.Passed)
			})
		}()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func hasValue(m map[schema.FieldID]string) bool {
	for _, v := range m {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Reset clears every domain, the overrides, and the uploaded files.
func (s *Session) Reset(ctx context.Context) error {
	var err error
	doErr := s.do(ctx, func() {
		if _, err = s.ctrl.Fire(reconcile.TriggerReset); err != nil {
			return
		}
		s.st.overrides = make(map[schema.FieldID]string)
		s.st.carried = nil
		s.st.docs = nil
		s.logger.Info("session reset")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func extractUnit(key, setID, templateID string, res *providers.ExtractResult, err error) *results.UnitResult {
	if err != nil {
		return results.Failure(key, setID, templateID, err.Error())
	}
	return results.NewUnit(results.Params{
		Key:            key,
		DocumentID:     setID,
		TemplateID:     templateID,
		Fields:         readings(res.MappedFields),
		Overlay:        res.ConfidenceOverlay,
		DetectionCount: res.TotalDetections,
		RawText:        res.RawText,
	})
}

func detectionUnit(key, setID, templateID string, res *providers.ExtractResult, err error) *results.UnitResult {
	if err != nil {
		return results.Failure(key, setID, templateID, err.Error())
	}
	count := res.TotalDetections
	if count == nil {
		n := len(res.Detections)
		count = &n
	}
	return results.NewUnit(results.Params{
		Key:            key,
		DocumentID:     setID,
		TemplateID:     templateID,
		Overlay:        res.ConfidenceOverlay,
		DetectionCount: count,
	})
}

func pageUnit(key, setID, templateID string, page providers.PageResult) *results.UnitResult {
	if page.Error != "" {
		return results.Failure(key, setID, templateID, page.Error)
	}
	return results.NewUnit(results.Params{
		Key:            key,
		DocumentID:     setID,
		TemplateID:     templateID,
		Fields:         readings(page.MappedFields),
		DetectionCount: page.TotalDetections,
		RawText:        page.RawText,
	})
}

func readings(fields map[string]providers.MappedField) map[schema.FieldID]results.FieldReading {
	out := make(map[schema.FieldID]results.FieldReading, len(fields))
	for k, f := range fields {
		out[schema.FieldID(k)] = results.FieldReading{Value: f.Value, Confidence: f.Confidence}
	}
	return out
}
