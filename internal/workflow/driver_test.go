package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/browser/browsertest"
	"github.com/ternarybob/portal-smoke/internal/models"
)

func newLoadedWizard(t *testing.T) *browsertest.Wizard {
	t.Helper()
	w := browsertest.NewWizard()
	require.NoError(t, w.Navigate("http://127.0.0.1/index.html", time.Second))
	return w
}

func newTestDriver(page browser.Page) *Driver {
	return NewDriver(page, models.DefaultCandidate(), time.Second, arbor.NewLogger())
}

func TestActiveSelector(t *testing.T) {
	assert.Equal(t, "#introView.active", ActiveSelector(IntroStep))
	assert.Equal(t, "#section-2.active", ActiveSelector(2))
	assert.Equal(t, "#section-10.active", ActiveSelector(SubmitStep))
}

func TestNextControl(t *testing.T) {
	assert.Equal(t, "#accessPortalBtn", NextControl(IntroStep).Selector)
	assert.Equal(t, `button[data-next="3"]`, NextControl(2).Selector)
	assert.Equal(t, `button[data-next="10"]`, NextControl(ReviewStep).Selector)
}

func TestValidateSequence(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{name: "default sections", steps: Sections()},
		{name: "single step", steps: []Step{{Number: 4}}},
		{name: "empty", steps: nil, wantErr: true},
		{name: "gap", steps: []Step{{Number: 2}, {Number: 4}}, wantErr: true},
		{name: "descending", steps: []Step{{Number: 3}, {Number: 2}}, wantErr: true},
		{name: "repeated", steps: []Step{{Number: 2}, {Number: 2}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSequence(tt.steps)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDriverRunCompletesAllSections(t *testing.T) {
	w := newLoadedWizard(t)
	d := newTestDriver(w)

	require.NoError(t, d.Run(Sections()))

	assert.Equal(t, ReviewStep, d.Current())
	assert.Equal(t, ReviewStep, w.Step())
	assert.Equal(t, browsertest.DefaultUnitID, d.UnitID())
	assert.Equal(t, "Alex Carter", w.Field("#fullName"))
	assert.Equal(t, "Geomatics", w.Field("#specialisation"))
	assert.Equal(t, "Spanish", w.Field(`#languagesContainer .entry-card input[data-field="language"]`))
	assert.Equal(t, "Native", w.Field(`#languagesContainer .entry-card select[data-field="level"]`))
	assert.Equal(t, "Conducted", w.Field(`#section-5 .entry-card select[data-field="actionVerb"]`))
}

func TestDriverStepsOnlyRunAfterActivation(t *testing.T) {
	w := newLoadedWizard(t)
	d := newTestDriver(w)

	var seen []int
	record := func(d *Driver) error {
		seen = append(seen, d.Current())
		return nil
	}
	steps := []Step{
		{Number: 1, Name: "intro", Fill: record},
		{Number: 2, Name: "two", Fill: record},
		{Number: 3, Name: "three", Fill: record},
	}

	require.NoError(t, d.Run(steps))
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, w.Step())
}

func TestDriverRejectsBadUnitID(t *testing.T) {
	w := newLoadedWizard(t)
	w.UnitID = "unit-12345"
	d := newTestDriver(w)

	err := d.Run(Sections())
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Contains(t, err.Error(), "section 2 (personal)")
	assert.Equal(t, 2, w.Step())
}

func TestDriverTimesOutOnStalledSection(t *testing.T) {
	w := newLoadedWizard(t)
	w.Stall = "#section-5.active"
	d := newTestDriver(w)

	err := d.Run(Sections())
	require.Error(t, err)
	assert.True(t, browser.IsTimeout(err))
	assert.False(t, IsAssertion(err))
	assert.Contains(t, err.Error(), "#section-5.active")
	assert.Equal(t, 4, d.Current())
}

func TestDriverSummaryLengthFloor(t *testing.T) {
	w := newLoadedWizard(t)
	c := models.DefaultCandidate()
	c.Summary = "Too short."
	d := NewDriver(w, c, time.Second, arbor.NewLogger())

	err := d.Run(Sections())
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "section 3 (summary)", ae.Section)
	assert.Equal(t, "Too short.", ae.Got)
}

func TestEnsureEntryOnlyAddsWhenMissing(t *testing.T) {
	w := newLoadedWizard(t)
	d := newTestDriver(w)

	require.NoError(t, w.Click(browser.Query("#addEducationBtn")))
	require.NoError(t, d.ensureEntry("#section-4 .entry-card", "#addEducationBtn"))

	n, err := w.Count("#section-4 .entry-card")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, d.ensureEntry("#section-5 .entry-card", "#addProjectBtn"))
	n, err = w.Count("#section-5 .entry-card")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDriverClicksOnlyVisibleChips(t *testing.T) {
	tests := []struct {
		name       string
		hidden     []string
		chips      []string
		wantErr    bool
		wantSkills []string
	}{
		{
			name:       "hidden duplicates do not block visible chips",
			hidden:     []string{"QGIS", "Python"},
			chips:      []string{"QGIS", "python"},
			wantSkills: []string{"QGIS", "Python", "PostgreSQL/PostGIS"},
		},
		{
			name:    "chip only present hidden",
			hidden:  []string{"Fortran"},
			chips:   []string{"QGIS", "Fortran"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newLoadedWizard(t)
			w.HiddenButtons = tt.hidden
			c := models.DefaultCandidate()
			c.SkillChips = tt.chips
			d := NewDriver(w, c, time.Second, arbor.NewLogger())

			err := d.Run(Sections())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, browser.IsTimeout(err))
				assert.Contains(t, err.Error(), "step 6 (technical skills)")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSkills, w.SelectedSkills())
		})
	}
}

func TestDriverSectionAssertions(t *testing.T) {
	tests := []struct {
		name            string
		setup           func(w *browsertest.Wizard)
		wantSection     string
		wantExpectation string
	}{
		{
			name:            "short experience bullet",
			setup:           func(w *browsertest.Wizard) { w.BulletOverride = "Surveyed the campus" },
			wantSection:     "section 5 (experience)",
			wantExpectation: "longer than 20 characters",
		},
		{
			name:            "bullet exactly at the floor",
			setup:           func(w *browsertest.Wizard) { w.BulletOverride = "Surveyed campus GNSS" },
			wantSection:     "section 5 (experience)",
			wantExpectation: "longer than 20 characters",
		},
		{
			name:            "missing selected skill",
			setup:           func(w *browsertest.Wizard) { w.DropSkills = 1 },
			wantSection:     "section 6 (technical skills)",
			wantExpectation: "at least 3 selected skills",
		},
		{
			name:            "soft skill counter mismatch",
			setup:           func(w *browsertest.Wizard) { w.DropSoftSkills = 1 },
			wantSection:     "section 8 (soft skills)",
			wantExpectation: `"2/5 selected"`,
		},
		{
			name:            "preview without name",
			setup:           func(w *browsertest.Wizard) { w.PreviewOmit = []string{"Alex Carter"} },
			wantSection:     "section 9 (review)",
			wantExpectation: `"Alex Carter"`,
		},
		{
			name:            "preview without unit id",
			setup:           func(w *browsertest.Wizard) { w.PreviewOmit = []string{browsertest.DefaultUnitID} },
			wantSection:     "section 9 (review)",
			wantExpectation: `"UNIT-AB12CD34"`,
		},
		{
			name:            "preview without specialisation",
			setup:           func(w *browsertest.Wizard) { w.PreviewOmit = []string{"Geomatics"} },
			wantSection:     "section 9 (review)",
			wantExpectation: `"Geomatics"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newLoadedWizard(t)
			tt.setup(w)
			d := newTestDriver(w)

			err := d.Run(Sections())
			require.Error(t, err)

			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantSection, ae.Section)
			assert.Contains(t, ae.Expectation, tt.wantExpectation)
		})
	}
}
