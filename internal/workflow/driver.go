// Package workflow drives the portal wizard: the per-section Step Driver, the persistence and
// timer State Verifier, and the Export Retry Controller.
package workflow

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/models"
)

// Wizard step numbers. The intro view counts as step 1 so the sequence is contiguous.
const (
	IntroStep  = 1
	ReviewStep = 9
	SubmitStep = 10
)

// DefaultStepTimeout bounds the wait for the next section to become active.
const DefaultStepTimeout = 5 * time.Second

// DefaultNavigationTimeout bounds a document load up to DOMContentLoaded.
const DefaultNavigationTimeout = 30 * time.Second

// Step is one wizard stage: its number, a name for reporting, and the interactions and
// local assertions run once the stage is active.
type Step struct {
	Number int
	Name   string
	Fill   func(d *Driver) error
}

// ActiveSelector is the DOM predicate marking a step as active.
func ActiveSelector(step int) string {
	if step == IntroStep {
		return "#introView.active"
	}
	return fmt.Sprintf("#section-%d.active", step)
}

// NextControl is the control that advances from step to step+1.
func NextControl(step int) browser.Element {
	if step == IntroStep {
		return browser.Query("#accessPortalBtn")
	}
	return browser.Query(fmt.Sprintf(`button[data-next="%d"]`, step+1))
}

// ValidateSequence checks that steps are contiguous and strictly ascending.
func ValidateSequence(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("empty step sequence")
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Number != steps[i-1].Number+1 {
			return fmt.Errorf("step %d (%s) cannot follow step %d (%s)",
				steps[i].Number, steps[i].Name, steps[i-1].Number, steps[i-1].Name)
		}
	}
	return nil
}

// Driver executes wizard steps in order against one page.
type Driver struct {
	page        browser.Page
	logger      arbor.ILogger
	candidate   models.Candidate
	stepTimeout time.Duration

	current     int
	currentName string
	unitID      string
}

// NewDriver creates a driver. A zero stepTimeout uses DefaultStepTimeout.
func NewDriver(page browser.Page, candidate models.Candidate, stepTimeout time.Duration, logger arbor.ILogger) *Driver {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Driver{
		page:        page,
		logger:      logger,
		candidate:   candidate,
		stepTimeout: stepTimeout,
	}
}

// UnitID is the unit identifier captured in section 2.
func (d *Driver) UnitID() string {
	return d.unitID
}

// Current is the last step whose activation was observed.
func (d *Driver) Current() int {
	return d.current
}

// Run executes steps in order. Each step's interactions only start after its activation
// selector has been observed; every step but the last advances to its successor.
func (d *Driver) Run(steps []Step) error {
	if err := ValidateSequence(steps); err != nil {
		return err
	}

	for i, step := range steps {
		d.currentName = step.Name
		if d.current != step.Number {
			if err := d.WaitActive(step.Number); err != nil {
				return fmt.Errorf("step %d (%s): %w", step.Number, step.Name, err)
			}
		}

		start := time.Now()
		if step.Fill != nil {
			if err := step.Fill(d); err != nil {
				return fmt.Errorf("step %d (%s): %w", step.Number, step.Name, err)
			}
		}

		if i < len(steps)-1 {
			if err := d.Advance(); err != nil {
				return fmt.Errorf("step %d (%s): %w", step.Number, step.Name, err)
			}
		}

		d.logger.Info().
			Int("step", step.Number).
			Str("name", step.Name).
			Dur("elapsed", time.Since(start)).
			Msg("Step complete")
	}
	return nil
}

// WaitActive blocks until step's activation selector is visible.
func (d *Driver) WaitActive(step int) error {
	if err := d.page.WaitVisible(ActiveSelector(step), d.stepTimeout); err != nil {
		return err
	}
	d.current = step
	return nil
}

// Advance clicks the current step's next control and waits for the successor to activate.
func (d *Driver) Advance() error {
	if err := d.page.Click(NextControl(d.current)); err != nil {
		return err
	}
	return d.WaitActive(d.current + 1)
}

func (d *Driver) section() string {
	return fmt.Sprintf("section %d (%s)", d.current, d.currentName)
}

func (d *Driver) fail(expectation, got string) error {
	return mismatch(d.section(), expectation, got)
}

func (d *Driver) fill(selector, value string) error {
	return d.page.Fill(browser.Query(selector), value)
}

// enterTag types a value into a tag-style input and commits it with Enter.
func (d *Driver) enterTag(el browser.Element, value string) error {
	if err := d.page.Fill(el, value); err != nil {
		return err
	}
	return d.page.Press(el, "Enter")
}

// ensureEntry adds a list entry when the section has none yet.
func (d *Driver) ensureEntry(cardSelector, addButton string) error {
	n, err := d.page.Count(cardSelector)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := d.page.Click(browser.Query(addButton)); err != nil {
		return err
	}
	return d.page.WaitVisible(cardSelector, d.stepTimeout)
}
