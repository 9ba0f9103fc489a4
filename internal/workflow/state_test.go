package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser/browsertest"
)

// reviewWizard returns a wizard driven through every section up to review.
func reviewWizard(t *testing.T) *browsertest.Wizard {
	t.Helper()
	w := newLoadedWizard(t)
	require.NoError(t, newTestDriver(w).Run(Sections()))
	return w
}

func newTestVerifier(w *browsertest.Wizard) *StateVerifier {
	v := NewStateVerifier(w, "Alex Carter", DefaultTimerWait, time.Second, arbor.NewLogger())
	v.sleep = w.Sleep
	return v
}

func TestStateVerifierRead(t *testing.T) {
	w := reviewWizard(t)
	v := newTestVerifier(w)

	state, err := v.Read()
	require.NoError(t, err)
	assert.Equal(t, "Alex Carter", state.FullName)
	assert.Equal(t, ReviewStep, state.CurrentStep)
	require.NotNil(t, state.TimerStart)
	assert.Contains(t, state.AppRaw, `"currentStep":9`)
}

func TestStateVerifierPasses(t *testing.T) {
	w := reviewWizard(t)
	w.ReloadElapsed = 100 * time.Millisecond
	v := newTestVerifier(w)

	require.NoError(t, v.Verify())
	assert.Equal(t, 1, w.Reloads())
	assert.Equal(t, ReviewStep, w.Step())
}

func TestStateVerifierFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(w *browsertest.Wizard, v *StateVerifier)
		expect string
	}{
		{
			name: "wrong persisted name",
			setup: func(w *browsertest.Wizard, v *StateVerifier) {
				v.fullName = "Someone Else"
			},
			expect: "persisted full name",
		},
		{
			name: "record changed by reload",
			setup: func(w *browsertest.Wizard, v *StateVerifier) {
				w.MutateOnReload = true
			},
			expect: "application record unchanged",
		},
		{
			name: "timer restarted",
			setup: func(w *browsertest.Wizard, v *StateVerifier) {
				w.RestartTimerOnReload = true
			},
			expect: "timer start",
		},
		{
			name: "countdown not advancing",
			setup: func(w *browsertest.Wizard, v *StateVerifier) {
				w.ReloadElapsed = 0
				v.sleep = func(time.Duration) {}
			},
			expect: "countdown at most 1799s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := reviewWizard(t)
			v := newTestVerifier(w)
			tt.setup(w, v)

			err := v.Verify()
			require.Error(t, err)
			assert.True(t, IsAssertion(err))
			assert.Contains(t, err.Error(), tt.expect)
		})
	}
}

func TestStateVerifierRequiresReviewStep(t *testing.T) {
	w := newLoadedWizard(t)
	v := newTestVerifier(w)

	err := v.Verify()
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Equal(t, 0, w.Reloads())
}
