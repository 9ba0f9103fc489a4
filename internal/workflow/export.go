package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/models"
)

// Export defaults.
const (
	MaxExportAttempts     = 60
	ExportAttemptDelay    = 500 * time.Millisecond
	DefaultOverlayTimeout = 5 * time.Second
	DefaultDownloadReady  = 55 * time.Second
	DefaultTranscript     = 45 * time.Second
)

const exportSection = "export"

// ExportOptions bounds the submission waits and the export retry loop.
type ExportOptions struct {
	MaxAttempts   int
	AttemptDelay  time.Duration
	Overlay       time.Duration
	DownloadReady time.Duration
	Transcript    time.Duration
	StepTimeout   time.Duration
}

// DefaultExportOptions returns the standard bounds.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		MaxAttempts:   MaxExportAttempts,
		AttemptDelay:  ExportAttemptDelay,
		Overlay:       DefaultOverlayTimeout,
		DownloadReady: DefaultDownloadReady,
		Transcript:    DefaultTranscript,
		StepTimeout:   DefaultStepTimeout,
	}
}

func (o ExportOptions) withDefaults() ExportOptions {
	d := DefaultExportOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.AttemptDelay <= 0 {
		o.AttemptDelay = d.AttemptDelay
	}
	if o.Overlay <= 0 {
		o.Overlay = d.Overlay
	}
	if o.DownloadReady <= 0 {
		o.DownloadReady = d.DownloadReady
	}
	if o.Transcript <= 0 {
		o.Transcript = d.Transcript
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = d.StepTimeout
	}
	return o
}

// instrumentScript resets the capture counters and installs the createObjectURL, anchor click
// and alert patches once per document.
const instrumentScript = `(() => {
  const s = window.__portalSmoke = window.__portalSmoke || {};
  s.blobCount = 0;
  s.blobSize = 0;
  s.downloadName = '';
  s.alert = '';
  if (!s.objectURLPatched) {
    const orig = URL.createObjectURL;
    URL.createObjectURL = function (blob) {
      s.blobCount += 1;
      s.blobSize = (blob && blob.size) || 0;
      return orig.call(this, blob);
    };
    s.objectURLPatched = true;
  }
  if (!s.anchorPatched) {
    const orig = HTMLAnchorElement.prototype.click;
    HTMLAnchorElement.prototype.click = function () {
      s.downloadName = this.download || '';
      return orig.call(this);
    };
    s.anchorPatched = true;
  }
  if (!s.alertPatched) {
    window.alert = function (message) {
      s.alert = String(message || '');
    };
    s.alertPatched = true;
  }
  return true;
})()`

const outcomeScript = `(() => {
  const s = window.__portalSmoke || {};
  return {
    blobCount: s.blobCount || 0,
    blobSize: s.blobSize || 0,
    downloadName: s.downloadName || '',
    alert: s.alert || '',
    libraryLoaded: typeof window.docx !== 'undefined'
  };
})()`

// ExportController drives the submission transcript and the retried document export.
type ExportController struct {
	page      browser.Page
	logger    arbor.ILogger
	candidate models.Candidate
	opts      ExportOptions
	sleep     func(time.Duration)

	instrumented bool
	attempts     int
}

// NewExportController creates a controller; zero option fields use the defaults.
func NewExportController(page browser.Page, candidate models.Candidate, opts ExportOptions, logger arbor.ILogger) *ExportController {
	return &ExportController{
		page:      page,
		logger:    logger,
		candidate: candidate,
		opts:      opts.withDefaults(),
		sleep:     time.Sleep,
	}
}

// Attempts is the number of export clicks the last Export call made.
func (c *ExportController) Attempts() int {
	return c.attempts
}

func (c *ExportController) transcriptMarkers() []string {
	return []string{
		"CANDIDATE: " + c.candidate.FullName,
		"SPECIALISATION: " + c.candidate.Specialisation,
		"Transmission End.",
	}
}

// Submit moves to the submission section, starts the transmission and waits for the transcript.
func (c *ExportController) Submit() error {
	if err := c.page.Click(NextControl(ReviewStep)); err != nil {
		return err
	}
	if err := c.page.WaitVisible(ActiveSelector(SubmitStep), c.opts.StepTimeout); err != nil {
		return err
	}
	if err := c.page.Click(browser.Query("#startSubmissionBtn")); err != nil {
		return err
	}
	if err := c.page.WaitVisible("#submissionOverlay.active", c.opts.Overlay); err != nil {
		return err
	}
	if err := c.page.WaitVisible("#downloadDocxBtn", c.opts.DownloadReady); err != nil {
		return err
	}

	markers := c.transcriptMarkers()
	if err := c.page.WaitForFunction(transcriptPredicate(markers), c.opts.Transcript); err != nil {
		return err
	}

	transcript, err := c.page.Text(browser.Query("#terminal"))
	if err != nil {
		return err
	}
	for _, m := range markers[:2] {
		if !strings.Contains(transcript, m) {
			return mismatch(exportSection, fmt.Sprintf("transcript containing %q", m), transcript)
		}
	}
	c.logger.Info().Msg("Submission transcript complete")
	return nil
}

func transcriptPredicate(markers []string) string {
	checks := make([]string, 0, len(markers))
	for _, m := range markers {
		checks = append(checks, "t.textContent.includes("+strconv.Quote(m)+")")
	}
	return "(() => { const t = document.querySelector('#terminal'); return !!t && " +
		strings.Join(checks, " && ") + "; })()"
}

// EnsureInstrumented installs the export capture patches. Repeated calls are no-ops.
func (c *ExportController) EnsureInstrumented() error {
	if c.instrumented {
		return nil
	}
	if err := c.page.Evaluate(instrumentScript, nil); err != nil {
		return fmt.Errorf("failed to instrument export: %w", err)
	}
	c.instrumented = true
	return nil
}

// Outcome reads what the instrumentation has captured so far.
func (c *ExportController) Outcome() (models.ExportOutcome, error) {
	var out models.ExportOutcome
	if err := c.page.Evaluate(outcomeScript, &out); err != nil {
		return out, fmt.Errorf("failed to read export outcome: %w", err)
	}
	return out, nil
}

// Export clicks the download control until a blob or an alert is observed, then checks the result.
func (c *ExportController) Export() (models.ExportOutcome, error) {
	var out models.ExportOutcome
	if err := c.EnsureInstrumented(); err != nil {
		return out, err
	}

	c.attempts = 0
	for c.attempts < c.opts.MaxAttempts {
		c.attempts++
		if err := c.page.Click(browser.Query("#downloadDocxBtn")); err != nil {
			return out, err
		}
		c.sleep(c.opts.AttemptDelay)

		var err error
		if out, err = c.Outcome(); err != nil {
			return out, err
		}
		if out.Terminal() {
			break
		}
	}

	c.logger.Info().
		Int("attempts", c.attempts).
		Int("blob_count", out.BlobCount).
		Str("download_name", out.DownloadName).
		Int64("blob_size", out.BlobSize).
		Bool("library_loaded", out.LibraryLoaded).
		Msg("Export loop finished")

	if !out.Terminal() {
		return out, mismatch(exportSection,
			fmt.Sprintf("export triggered within %d attempts", c.opts.MaxAttempts),
			fmt.Sprintf("count=%d size=%d name=%s", out.BlobCount, out.BlobSize, out.DownloadName))
	}
	if out.Alerted() {
		return out, mismatch(exportSection, "no export alert", out.Alert)
	}
	if out.BlobCount <= 0 || out.BlobSize <= 0 {
		return out, mismatch(exportSection, "non-empty document blob",
			fmt.Sprintf("count=%d size=%d", out.BlobCount, out.BlobSize))
	}
	prefix := c.candidate.ExportFilePrefix()
	if !strings.HasPrefix(out.DownloadName, prefix) || !strings.HasSuffix(out.DownloadName, models.ExportExtension) {
		return out, mismatch(exportSection,
			fmt.Sprintf("download name %s*%s", prefix, models.ExportExtension), out.DownloadName)
	}
	return out, nil
}

// ReturnToReview goes back from the submission screen to the review section.
func (c *ExportController) ReturnToReview() error {
	if err := c.page.Click(browser.Query("#reviewCvBtn")); err != nil {
		return err
	}
	return c.page.WaitVisible(ActiveSelector(ReviewStep), c.opts.StepTimeout)
}

// Run performs submission, export and the return to review.
func (c *ExportController) Run() (models.ExportOutcome, error) {
	if err := c.Submit(); err != nil {
		return models.ExportOutcome{}, err
	}
	out, err := c.Export()
	if err != nil {
		return out, err
	}
	return out, c.ReturnToReview()
}
