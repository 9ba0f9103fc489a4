package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/browser/browsertest"
	"github.com/ternarybob/portal-smoke/internal/models"
)

func newTestExport(w *browsertest.Wizard, opts ExportOptions) *ExportController {
	c := NewExportController(w, models.DefaultCandidate(), opts, arbor.NewLogger())
	c.sleep = w.Sleep
	return c
}

func TestExportOptionsDefaults(t *testing.T) {
	opts := ExportOptions{MaxAttempts: 3}.withDefaults()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, ExportAttemptDelay, opts.AttemptDelay)
	assert.Equal(t, DefaultOverlayTimeout, opts.Overlay)
	assert.Equal(t, DefaultDownloadReady, opts.DownloadReady)
	assert.Equal(t, DefaultTranscript, opts.Transcript)
	assert.Equal(t, DefaultStepTimeout, opts.StepTimeout)
}

func TestTranscriptPredicate(t *testing.T) {
	expr := transcriptPredicate([]string{"CANDIDATE: Alex Carter", "Transmission End."})
	assert.Contains(t, expr, "document.querySelector('#terminal')")
	assert.Contains(t, expr, `t.textContent.includes("CANDIDATE: Alex Carter")`)
	assert.Contains(t, expr, `t.textContent.includes("Transmission End.")`)
}

func TestExportControllerRun(t *testing.T) {
	w := reviewWizard(t)
	c := newTestExport(w, DefaultExportOptions())

	out, err := c.Run()
	require.NoError(t, err)

	assert.Equal(t, 3, c.Attempts())
	assert.Equal(t, 3, w.Clicks())
	assert.Equal(t, 1, out.BlobCount)
	assert.Positive(t, out.BlobSize)
	assert.Equal(t, "MARS1_Application_Alex_Carter.docx", out.DownloadName)
	assert.Empty(t, out.Alert)
	assert.True(t, out.LibraryLoaded)
	assert.Equal(t, ReviewStep, w.Step())
}

func TestEnsureInstrumentedIsIdempotent(t *testing.T) {
	w := reviewWizard(t)
	c := newTestExport(w, DefaultExportOptions())

	require.NoError(t, c.EnsureInstrumented())
	require.NoError(t, c.EnsureInstrumented())
	assert.Equal(t, 1, w.Evaluations("createObjectURL"))
}

func TestExportStopsAtAttemptBound(t *testing.T) {
	w := reviewWizard(t)
	w.ExportNever = true
	c := newTestExport(w, ExportOptions{MaxAttempts: 4})

	require.NoError(t, c.Submit())
	_, err := c.Export()
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Contains(t, err.Error(), "export triggered within 4 attempts")
	assert.Equal(t, 4, w.Clicks())
}

func TestExportFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(w *browsertest.Wizard)
		expect string
	}{
		{
			name:   "alert raised",
			setup:  func(w *browsertest.Wizard) { w.ExportAlert = "DOCX library failed to load" },
			expect: "no export alert",
		},
		{
			name:   "wrong filename prefix",
			setup:  func(w *browsertest.Wizard) { w.DownloadName = "Application.docx" },
			expect: "download name MARS1_Application_Alex_Carter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := reviewWizard(t)
			tt.setup(w)
			c := newTestExport(w, DefaultExportOptions())

			_, err := c.Run()
			require.Error(t, err)
			assert.True(t, IsAssertion(err))
			assert.Contains(t, err.Error(), tt.expect)
			assert.Equal(t, w.ExportReadyAfter, c.Attempts())
		})
	}
}

func TestExportWrongExtensionIsRetriedUntilBound(t *testing.T) {
	w := reviewWizard(t)
	w.DownloadName = "MARS1_Application_Alex_Carter.pdf"
	c := newTestExport(w, ExportOptions{MaxAttempts: 5})

	_, err := c.Run()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "export triggered within 5 attempts"))
	assert.Equal(t, 5, c.Attempts())
}

func TestSubmitTimesOutWithoutTranscript(t *testing.T) {
	w := reviewWizard(t)
	w.Stall = "#terminal"
	c := newTestExport(w, ExportOptions{Transcript: 10 * time.Millisecond})

	err := c.Submit()
	require.Error(t, err)
	assert.True(t, browser.IsTimeout(err))
}
