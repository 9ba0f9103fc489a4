package workflow

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/models"
)

// DefaultTimerWait is the real time allowed to pass between the two countdown reads.
const DefaultTimerWait = 2200 * time.Millisecond

const stateSection = "persistence"

// stateScript reads both persisted records. appRaw is returned verbatim for the byte-identity check.
var stateScript = fmt.Sprintf(`(() => {
  const appRaw = localStorage.getItem(%[1]s) || '';
  let app = {};
  let timer = {};
  try { app = JSON.parse(appRaw || '{}') || {}; } catch (e) {}
  try { timer = JSON.parse(localStorage.getItem(%[2]s) || '{}') || {}; } catch (e) {}
  const started = timer.startedAt;
  return {
    fullName: (app.personal && app.personal.fullName) || '',
    currentStep: Number(app.currentStep) || 0,
    timerStart: typeof started === 'number' && Number.isFinite(started) ? started : null,
    appRaw: appRaw
  };
})()`, strconv.Quote(models.AppStorageKey), strconv.Quote(models.TimerStorageKey))

// StateVerifier checks that the application record and the countdown survive a reload.
type StateVerifier struct {
	page        browser.Page
	logger      arbor.ILogger
	fullName    string
	step        int
	wait        time.Duration
	stepTimeout time.Duration
	sleep       func(time.Duration)

	// NavigationTimeout bounds the reload. Defaults to DefaultNavigationTimeout.
	NavigationTimeout time.Duration
}

// NewStateVerifier creates a verifier expecting fullName persisted at the review step.
// Zero durations fall back to DefaultTimerWait and DefaultStepTimeout.
func NewStateVerifier(page browser.Page, fullName string, wait, stepTimeout time.Duration, logger arbor.ILogger) *StateVerifier {
	if wait <= 0 {
		wait = DefaultTimerWait
	}
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &StateVerifier{
		page:        page,
		logger:      logger,
		fullName:    fullName,
		step:        ReviewStep,
		wait:        wait,
		stepTimeout: stepTimeout,
		sleep:       time.Sleep,

		NavigationTimeout: DefaultNavigationTimeout,
	}
}

// Read returns the persisted records as the page currently sees them.
func (v *StateVerifier) Read() (models.PersistedState, error) {
	var state models.PersistedState
	if err := v.page.Evaluate(stateScript, &state); err != nil {
		return state, fmt.Errorf("failed to read persisted state: %w", err)
	}
	return state, nil
}

// Countdown reads the remaining time shown by #timer in seconds.
func (v *StateVerifier) Countdown() (int, error) {
	text, err := v.page.Text(browser.Query("#timer"))
	if err != nil {
		return 0, err
	}
	seconds, err := ParseCountdown(text)
	if err != nil {
		return 0, mismatch(stateSection, "countdown in MM:SS", text)
	}
	return seconds, nil
}

// Verify runs the reload round trip.
func (v *StateVerifier) Verify() error {
	before, err := v.Read()
	if err != nil {
		return err
	}
	if err := v.check(before); err != nil {
		return err
	}

	t1, err := v.Countdown()
	if err != nil {
		return err
	}

	v.sleep(v.wait)

	if err := v.page.Reload(v.NavigationTimeout); err != nil {
		return err
	}
	if err := v.page.WaitVisible(ActiveSelector(v.step), v.stepTimeout); err != nil {
		return err
	}

	t2, err := v.Countdown()
	if err != nil {
		return err
	}
	after, err := v.Read()
	if err != nil {
		return err
	}
	if err := v.check(after); err != nil {
		return err
	}

	if after.AppRaw != before.AppRaw {
		return mismatch(stateSection, "application record unchanged across reload", after.AppRaw)
	}
	if *after.TimerStart != *before.TimerStart {
		return mismatch(stateSection,
			"timer start "+formatEpoch(*before.TimerStart),
			formatEpoch(*after.TimerStart))
	}
	if t2 > t1-1 {
		return mismatch(stateSection,
			fmt.Sprintf("countdown at most %ds after reload", t1-1),
			strconv.Itoa(t2)+"s")
	}

	v.logger.Info().
		Int("countdown_before", t1).
		Int("countdown_after", t2).
		Msg("Persistence and timer verified")
	return nil
}

func (v *StateVerifier) check(s models.PersistedState) error {
	if s.FullName != v.fullName {
		return mismatch(stateSection, fmt.Sprintf("persisted full name %q", v.fullName), s.FullName)
	}
	if s.CurrentStep != v.step {
		return mismatch(stateSection, fmt.Sprintf("persisted current step %d", v.step), strconv.Itoa(s.CurrentStep))
	}
	if s.TimerStart == nil || math.IsNaN(*s.TimerStart) || math.IsInf(*s.TimerStart, 0) {
		return mismatch(stateSection, "finite timer start", "missing")
	}
	return nil
}

func formatEpoch(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
