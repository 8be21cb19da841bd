// Package reconcile decides which result domains a user trigger invalidates
// and tracks the request tokens that let late results be discarded.
package reconcile

import (
	"fmt"
	"log/slog"
	"sync"
)

// Domain is one independently populated family of results.
type Domain string

const (
	DomainExtraction   Domain = "extraction"
	DomainMultipage    Domain = "multipage"
	DomainBatch        Domain = "batch"
	DomainDetection    Domain = "detection"
	DomainVerification Domain = "verification"
)

// AllDomains lists every domain in display order.
var AllDomains = []Domain{
	DomainExtraction,
	DomainMultipage,
	DomainBatch,
	DomainDetection,
	DomainVerification,
}

// State is the population state of a domain.
type State string

const (
	StateEmpty     State = "empty"
	StatePopulated State = "populated"
)

// Trigger is a user action that may invalidate domains.
type Trigger string

const (
	TriggerUpload         Trigger = "upload"
	TriggerCameraCapture  Trigger = "camera_capture"
	TriggerTemplateChange Trigger = "template_change"
	TriggerStartSingle    Trigger = "start_single"
	TriggerStartMultipage Trigger = "start_multipage"
	TriggerStartBatch     Trigger = "start_batch"
	TriggerStartDetection Trigger = "start_detection"
	TriggerRetry          Trigger = "retry"
	TriggerReset          Trigger = "reset"
)

// Token identifies one dispatch into a domain. A result is accepted only if
// its token still equals the domain's live token.
type Token uint64

// clearTable maps each trigger to the domains it clears.
//
//   - upload, camera_capture -> everything
//   - template_change        -> all extraction domains (verification kept)
//   - start_single           -> verification, multipage, batch, detection
//   - start_multipage        -> verification, extraction, batch, detection
//   - start_batch            -> verification, extraction, multipage, detection
//   - start_detection        -> verification, multipage, batch
//   - retry                  -> verification
//   - reset                  -> everything
var clearTable = map[Trigger][]Domain{
	TriggerUpload:         AllDomains,
	TriggerCameraCapture:  AllDomains,
	TriggerTemplateChange: {DomainExtraction, DomainMultipage, DomainBatch, DomainDetection},
	TriggerStartSingle:    {DomainVerification, DomainMultipage, DomainBatch, DomainDetection},
	TriggerStartMultipage: {DomainVerification, DomainExtraction, DomainBatch, DomainDetection},
	TriggerStartBatch:     {DomainVerification, DomainExtraction, DomainMultipage, DomainDetection},
	TriggerStartDetection: {DomainVerification, DomainMultipage, DomainBatch},
	TriggerRetry:          {DomainVerification},
	TriggerReset:          AllDomains,
}

// Clears returns the domains trigger clears.
func Clears(trigger Trigger) ([]Domain, bool) {
	domains, ok := clearTable[trigger]
	if !ok {
		return nil, false
	}
	return append([]Domain(nil), domains...), true
}

// Controller owns domain states and tokens. Safe for concurrent use; clear
// hooks run synchronously on the calling goroutine.
type Controller struct {
	mu     sync.Mutex
	states map[Domain]State
	tokens map[Domain]Token
	hooks  map[Domain][]func()
	logger *slog.Logger
}

// NewController creates a controller with every domain empty.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		states: make(map[Domain]State, len(AllDomains)),
		tokens: make(map[Domain]Token, len(AllDomains)),
		hooks:  make(map[Domain][]func()),
		logger: logger,
	}
	for _, d := range AllDomains {
		c.states[d] = StateEmpty
	}
	return c
}

// OnClear registers fn to run whenever domain is cleared.
func (c *Controller) OnClear(domain Domain, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[domain] = append(c.hooks[domain], fn)
}

// Fire clears every domain the trigger names and returns them.
func (c *Controller) Fire(trigger Trigger) ([]Domain, error) {
	domains, ok := Clears(trigger)
	if !ok {
		return nil, fmt.Errorf("unknown trigger: %s", trigger)
	}
	c.logger.Debug("firing trigger", "trigger", trigger, "domains", domains)
	c.clear(domains...)
	return domains, nil
}

// Begin clears domain and returns the token a dispatch into it must carry.
func (c *Controller) Begin(domain Domain) Token {
	c.clear(domain)
	return c.Current(domain)
}

// Current returns the live token of domain.
func (c *Controller) Current(domain Domain) Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[domain]
}

// Accept reports whether a result carrying tok may be applied to domain.
func (c *Controller) Accept(domain Domain, tok Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens[domain] != tok {
		c.logger.Debug("dropping superseded result", "domain", domain, "token", tok, "live", c.tokens[domain])
		return false
	}
	return true
}

// Populate accepts tok and marks domain populated.
func (c *Controller) Populate(domain Domain, tok Token) bool {
	if !c.Accept(domain, tok) {
		return false
	}
	c.mu.Lock()
	c.states[domain] = StatePopulated
	c.mu.Unlock()
	return true
}

// State returns the population state of domain.
func (c *Controller) State(domain Domain) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[domain]
}

// States returns a snapshot of every domain's state.
func (c *Controller) States() map[Domain]State {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Domain]State, len(c.states))
	for d, s := range c.states {
		out[d] = s
	}
	return out
}

func (c *Controller) clear(domains ...Domain) {
	c.mu.Lock()
	var hooks []func()
	for _, d := range domains {
		c.states[d] = StateEmpty
		c.tokens[d]++
		hooks = append(hooks, c.hooks[d]...)
	}
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
