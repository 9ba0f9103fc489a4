// Package browsertest provides an in-memory browser.Page that behaves like the candidate
// portal wizard, for exercising the workflow and runner without a real browser.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/models"
	"github.com/ternarybob/portal-smoke/internal/signals"
)

// DefaultUnitID is the unit identifier a new Wizard shows in section 2.
const DefaultUnitID = "UNIT-AB12CD34"

// DefaultCountdown is the initial portal countdown.
const DefaultCountdown = 30 * time.Minute

var nextPattern = regexp.MustCompile(`^button\[data-next="(\d+)"\]$`)

// chipButtons are the preset chip buttons rendered in each chip section.
var chipButtons = map[int][]string{
	6: {"QGIS", "Python", "ArcGIS", "AutoCAD", "Remote Sensing"},
	8: {"Team leadership", "Project management", "Communication", "Problem solving"},
}

// Wizard is a fake portal page. Exported fields configure behaviour and must be set before use.
type Wizard struct {
	UnitID string
	// ReloadElapsed is the virtual time a reload takes.
	ReloadElapsed time.Duration
	// ExportReadyAfter is the number of download clicks before the export library is ready.
	ExportReadyAfter int
	// ExportAlert, when set, is raised instead of producing a document.
	ExportAlert string
	// ExportNever keeps the download control unresponsive to clicks.
	ExportNever bool
	// DownloadName overrides the generated download filename.
	DownloadName string
	// Stall names a selector that never becomes visible.
	Stall string
	// Signals are emitted to the listener on navigation.
	Signals []signals.Signal
	// MutateOnReload rewrites the application record on reload.
	MutateOnReload bool
	// RestartTimerOnReload writes a fresh timer record on reload.
	RestartTimerOnReload bool
	// HiddenButtons are buttons in inactive sections, e.g. duplicated chip labels.
	HiddenButtons []string
	// BulletOverride replaces the generated experience bullet.
	BulletOverride string
	// DropSkills and DropSoftSkills hide that many selected tags from the skill list
	// and the soft skill counter.
	DropSkills     int
	DropSoftSkills int
	// PreviewOmit lists values left out of the rendered preview.
	PreviewOmit []string

	mu           sync.Mutex
	sink         signals.Sink
	loaded       bool
	step         int
	fields       map[string]string
	educations   int
	projects     int
	languages    int
	skills       []string
	softSkills   []string
	timerStart   *float64
	elapsed      time.Duration
	extraRecord  string
	submitted    bool
	instrumented bool
	clicks       int
	blobCount    int
	blobSize     int64
	lastDownload string
	lastAlert    string
	reloads      int
	evaluations  []string
	loadTimeouts []time.Duration
}

// NewWizard returns a wizard that completes the whole scenario successfully.
func NewWizard() *Wizard {
	return &Wizard{
		UnitID:           DefaultUnitID,
		ReloadElapsed:    2200 * time.Millisecond,
		ExportReadyAfter: 3,
		fields:           make(map[string]string),
	}
}

func timeout(action, target string, d time.Duration) error {
	return &browser.TimeoutError{Action: action, Target: target, Timeout: d}
}

// Sleep advances the wizard's virtual clock.
func (w *Wizard) Sleep(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.elapsed += d
}

// Step returns the active wizard step.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Clicks returns the number of export clicks received.
func (w *Wizard) Clicks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clicks
}

// Reloads returns how many times the page was reloaded.
func (w *Wizard) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Field returns the last value filled or selected into selector.
func (w *Wizard) Field(selector string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields[selector]
}

// Evaluations returns how many scripts containing marker were evaluated.
func (w *Wizard) Evaluations(marker string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.evaluations {
		if strings.Contains(e, marker) {
			n++
		}
	}
	return n
}

// LoadTimeouts returns the timeouts passed to Navigate and Reload, in call order.
func (w *Wizard) LoadTimeouts() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.loadTimeouts...)
}

func (w *Wizard) Navigate(url string, d time.Duration) error {
	w.mu.Lock()
	w.loadTimeouts = append(w.loadTimeouts, d)
	w.loaded = true
	w.step = 1
	sink := w.sink
	emitted := append([]signals.Signal(nil), w.Signals...)
	w.mu.Unlock()

	if sink != nil {
		for _, s := range emitted {
			sink.Record(s.Kind, s.Message)
		}
	}
	return nil
}

func (w *Wizard) Reload(d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded {
		return timeout("reload", "page", d)
	}
	w.loadTimeouts = append(w.loadTimeouts, d)
	w.reloads++
	w.elapsed += w.ReloadElapsed
	if w.MutateOnReload {
		w.extraRecord = "reloaded"
	}
	if w.RestartTimerOnReload && w.timerStart != nil {
		restarted := *w.timerStart + float64(w.elapsed.Milliseconds())
		w.timerStart = &restarted
		w.elapsed = 0
	}
	w.submitted = false
	w.instrumented = false
	return nil
}

func (w *Wizard) visible(selector string) bool {
	if selector == w.Stall {
		return false
	}
	switch selector {
	case "#introView.active":
		return w.step == 1
	case "#submissionOverlay.active", "#downloadDocxBtn":
		return w.submitted
	case "#section-4 .entry-card":
		return w.educations > 0
	case "#section-5 .entry-card":
		return w.projects > 0
	}
	return selector == fmt.Sprintf("#section-%d.active", w.step)
}

func (w *Wizard) WaitVisible(selector string, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded || !w.visible(selector) {
		return timeout("wait for", selector, d)
	}
	return nil
}

func (w *Wizard) WaitForFunction(expression string, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if strings.Contains(expression, "#terminal") && w.submitted && w.Stall != "#terminal" {
		return nil
	}
	return timeout("wait for function", expression, d)
}

func (w *Wizard) Click(el browser.Element) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded || el.Selector == w.Stall {
		return timeout("click", el.String(), browser.DefaultActionTimeout)
	}

	if m := nextPattern.FindStringSubmatch(el.Selector); m != nil {
		next, _ := strconv.Atoi(m[1])
		if next != w.step+1 {
			return timeout("click", el.String(), browser.DefaultActionTimeout)
		}
		w.step = next
		return nil
	}

	switch el.Selector {
	case "#accessPortalBtn":
		if w.step != 1 {
			return timeout("click", el.String(), browser.DefaultActionTimeout)
		}
		w.step = 2
		started := float64(1767225600000)
		w.timerStart = &started
	case "#addEducationBtn":
		w.educations++
	case "#addProjectBtn":
		w.projects++
	case "#addLanguageBtn":
		w.languages++
	case "#startSubmissionBtn":
		if w.step != 10 {
			return timeout("click", el.String(), browser.DefaultActionTimeout)
		}
		w.submitted = true
	case "#downloadDocxBtn":
		if !w.submitted {
			return timeout("click", el.String(), browser.DefaultActionTimeout)
		}
		w.download()
	case "#reviewCvBtn":
		if !w.submitted {
			return timeout("click", el.String(), browser.DefaultActionTimeout)
		}
		w.submitted = false
		w.step = 9
	default:
		return timeout("click", el.String(), browser.DefaultActionTimeout)
	}
	return nil
}

func (w *Wizard) download() {
	w.clicks++
	if w.ExportNever || !w.instrumented || w.clicks < w.ExportReadyAfter {
		return
	}
	if w.ExportAlert != "" {
		w.lastAlert = w.ExportAlert
		return
	}
	w.blobCount++
	w.blobSize = 4096
	w.lastDownload = w.DownloadName
	if w.lastDownload == "" {
		w.lastDownload = "MARS1_Application_" + strings.Join(strings.Fields(w.fields["#fullName"]), "_") + ".docx"
	}
}

// ClickButton clicks the first visible button whose label contains name, ignoring case.
// HiddenButtons precede the active section's chips in document order and are never visible.
func (w *Wizard) ClickButton(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	type button struct {
		label   string
		visible bool
	}
	var buttons []button
	for _, label := range w.HiddenButtons {
		buttons = append(buttons, button{label: label})
	}
	for _, label := range chipButtons[w.step] {
		buttons = append(buttons, button{label: label, visible: true})
	}

	want := strings.ToLower(name)
	for _, b := range buttons {
		if !b.visible || !strings.Contains(strings.ToLower(b.label), want) {
			continue
		}
		if w.step == 6 {
			w.skills = append(w.skills, b.label)
		} else {
			w.softSkills = append(w.softSkills, b.label)
		}
		return nil
	}
	return timeout("click button", name, browser.DefaultActionTimeout)
}

// SelectedSkills returns the technical skill tags selected so far.
func (w *Wizard) SelectedSkills() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.skills...)
}

func (w *Wizard) Fill(el browser.Element, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded || el.Selector == w.Stall {
		return timeout("fill", el.String(), browser.DefaultActionTimeout)
	}
	w.fields[el.Selector] = value
	return nil
}

func (w *Wizard) Press(el browser.Element, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if key != "Enter" {
		return fmt.Errorf("unsupported key %q", key)
	}
	if el.Selector == "#customSkillInput" {
		w.skills = append(w.skills, w.fields[el.Selector])
	}
	return nil
}

func (w *Wizard) Select(el browser.Element, value string) error {
	return w.Fill(el, value)
}

func (w *Wizard) countdown() string {
	remaining := DefaultCountdown - w.elapsed
	if remaining < 0 {
		remaining = 0
	}
	secs := int(remaining / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func (w *Wizard) Text(el browser.Element) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch el.Selector {
	case "#unitIdText":
		return "  " + w.UnitID + "\n", nil
	case "#softCounter":
		return fmt.Sprintf("%d/5 selected", max(len(w.softSkills)-w.DropSoftSkills, 0)), nil
	case "#timer":
		return w.countdown(), nil
	case "#terminal":
		if !w.submitted {
			return "", nil
		}
		return fmt.Sprintf("> CANDIDATE: %s\n> SPECIALISATION: %s\n> Transmission End.",
			w.fields["#fullName"], w.fields["#specialisation"]), nil
	}
	return "", timeout("read text of", el.String(), browser.DefaultActionTimeout)
}

func (w *Wizard) Value(el browser.Element) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if strings.HasSuffix(el.Selector, `textarea[data-field="bullet"]`) {
		card := "#section-5 .entry-card"
		field := func(name string) string {
			return w.fields[fmt.Sprintf(`%s input[data-field="%s"]`, card, name)]
		}
		if w.BulletOverride != "" {
			return w.BulletOverride, nil
		}
		if field("did") == "" {
			return "", nil
		}
		return fmt.Sprintf("%s using %s, %s.", field("did"), field("toolsText"), field("outcome")), nil
	}
	return w.fields[el.Selector], nil
}

func (w *Wizard) HTML(el browser.Element) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if el.Selector != "#cvPreview" {
		return "", timeout("read html of", el.String(), browser.DefaultActionTimeout)
	}
	rendered := func(value string) string {
		for _, omitted := range w.PreviewOmit {
			if value == omitted {
				return ""
			}
		}
		return html.EscapeString(value)
	}
	return fmt.Sprintf("<div class=\"cv\">\n  <h1>%s</h1>\n  <p class=\"unit\">%s</p>\n  <p>%s &middot; %s</p>\n</div>",
		rendered(w.fields["#fullName"]),
		rendered(w.UnitID),
		rendered(w.fields["#specialisation"]),
		rendered(w.fields["#university"])), nil
}

func (w *Wizard) Count(selector string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch selector {
	case "#section-4 .entry-card":
		return w.educations, nil
	case "#section-5 .entry-card":
		return w.projects, nil
	case "#selectedSkillsList .tag":
		return max(len(w.skills)-w.DropSkills, 0), nil
	}
	return 0, nil
}

func (w *Wizard) appRecord() string {
	record := map[string]interface{}{
		"personal":    map[string]string{"fullName": w.fields["#fullName"]},
		"currentStep": w.step,
	}
	if w.extraRecord != "" {
		record["note"] = w.extraRecord
	}
	raw, _ := json.Marshal(record)
	return string(raw)
}

func (w *Wizard) Evaluate(expression string, out interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evaluations = append(w.evaluations, expression)

	var result interface{}
	switch {
	case strings.Contains(expression, "localStorage"):
		result = models.PersistedState{
			FullName:    w.fields["#fullName"],
			CurrentStep: w.step,
			TimerStart:  w.timerStart,
			AppRaw:      w.appRecord(),
		}
	case strings.Contains(expression, "createObjectURL"):
		w.instrumented = true
		w.blobCount, w.blobSize, w.lastDownload, w.lastAlert = 0, 0, "", ""
		result = true
	case strings.Contains(expression, "__portalSmoke"):
		result = models.ExportOutcome{
			BlobCount:     w.blobCount,
			BlobSize:      w.blobSize,
			DownloadName:  w.lastDownload,
			Alert:         w.lastAlert,
			LibraryLoaded: w.clicks >= w.ExportReadyAfter,
		}
	default:
		return fmt.Errorf("unexpected script: %s", expression)
	}

	if out == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (w *Wizard) Listen(sink signals.Sink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// Engine is a fake browser.Engine whose sessions all share one Wizard page.
type Engine struct {
	EngineName string
	Wizard     *Wizard
	LaunchErr  error

	mu       sync.Mutex
	launched int
	closed   int
	opts     browser.LaunchOptions
}

// NewEngine returns a fake engine driving a fresh successful wizard.
func NewEngine(name string) *Engine {
	return &Engine{EngineName: name, Wizard: NewWizard()}
}

func (e *Engine) Name() string {
	return e.EngineName
}

func (e *Engine) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launched++
	e.opts = opts
	return &session{engine: e}, nil
}

// Launched returns how many sessions were launched.
func (e *Engine) Launched() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launched
}

// Closed returns how many sessions were closed.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Options returns the options of the last launch.
func (e *Engine) Options() browser.LaunchOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

type session struct {
	engine *Engine
	once   sync.Once
}

func (s *session) Page() browser.Page {
	return s.engine.Wizard
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.engine.mu.Lock()
		s.engine.closed++
		s.engine.mu.Unlock()
	})
	return nil
}
