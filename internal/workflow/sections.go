package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/portal-smoke/internal/browser"
)

// UnitIDPattern is the shape of the per-session unit identifier.
var UnitIDPattern = regexp.MustCompile(`^UNIT-[A-Z0-9]{8}$`)

const (
	// MinSummaryLength is the length floor of the composed profile summary.
	MinSummaryLength = 50
	// MinBulletLength is exclusive: the generated experience bullet must be longer.
	MinBulletLength = 20
	// SoftSkillLimit is the maximum number of soft skills the portal allows.
	SoftSkillLimit = 5
)

// Sections returns the wizard steps from the intro view through the review section.
func Sections() []Step {
	return []Step{
		{Number: IntroStep, Name: "intro"},
		{Number: 2, Name: "personal", Fill: fillPersonal},
		{Number: 3, Name: "summary", Fill: fillSummary},
		{Number: 4, Name: "education", Fill: fillEducation},
		{Number: 5, Name: "experience", Fill: fillExperience},
		{Number: 6, Name: "technical skills", Fill: fillTechnicalSkills},
		{Number: 7, Name: "languages", Fill: fillLanguages},
		{Number: 8, Name: "soft skills", Fill: fillSoftSkills},
		{Number: ReviewStep, Name: "review", Fill: verifyPreview},
	}
}

func fillPersonal(d *Driver) error {
	c := d.candidate
	if err := d.fill("#fullName", c.FullName); err != nil {
		return err
	}
	if err := d.fill("#email", c.Email); err != nil {
		return err
	}
	if err := d.page.Select(browser.Query("#specialisation"), c.Specialisation); err != nil {
		return err
	}
	for _, f := range []struct{ selector, value string }{
		{"#university", c.University},
		{"#country", c.Country},
		{"#linkedin", c.LinkedIn},
	} {
		if err := d.fill(f.selector, f.value); err != nil {
			return err
		}
	}

	text, err := d.page.Text(browser.Query("#unitIdText"))
	if err != nil {
		return err
	}
	unitID := strings.TrimSpace(text)
	if !UnitIDPattern.MatchString(unitID) {
		return d.fail("unit identifier matching "+UnitIDPattern.String(), unitID)
	}
	d.unitID = unitID
	d.logger.Info().Str("unit_id", unitID).Msg("Unit identifier captured")
	return nil
}

func fillSummary(d *Driver) error {
	if err := d.fill("#summary", d.candidate.Summary); err != nil {
		return err
	}
	summary, err := d.page.Value(browser.Query("#summary"))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(summary)) < MinSummaryLength {
		return d.fail(fmt.Sprintf("summary of at least %d characters", MinSummaryLength), summary)
	}
	return nil
}

func fillEducation(d *Driver) error {
	const card = "#section-4 .entry-card"
	if err := d.ensureEntry(card, "#addEducationBtn"); err != nil {
		return err
	}

	e := d.candidate.Education
	for _, f := range []struct{ field, value string }{
		{"institution", e.Institution},
		{"degree", e.Degree},
		{"startYear", e.StartYear},
		{"endYear", e.EndYear},
		{"grade", e.Grade},
	} {
		if err := d.fill(fmt.Sprintf(`%s input[data-field="%s"]`, card, f.field), f.value); err != nil {
			return err
		}
	}

	return d.enterTag(browser.Query("#section-4 .modules-holder .tag-input-wrap input"), e.Module)
}

func fillExperience(d *Driver) error {
	const card = "#section-5 .entry-card"
	if err := d.ensureEntry(card, "#addProjectBtn"); err != nil {
		return err
	}

	p := d.candidate.Project
	for _, f := range []struct{ field, value string }{
		{"title", p.Title},
		{"role", p.Role},
		{"period", p.Period},
	} {
		if err := d.fill(fmt.Sprintf(`%s input[data-field="%s"]`, card, f.field), f.value); err != nil {
			return err
		}
	}

	tools := browser.Query("#section-5 .project-tools .tag-input-wrap input")
	for _, tool := range p.Tools {
		if err := d.enterTag(tools, tool); err != nil {
			return err
		}
	}

	if err := d.page.Select(browser.Query(card+` select[data-field="actionVerb"]`), p.ActionVerb); err != nil {
		return err
	}
	for _, f := range []struct{ field, value string }{
		{"did", p.Did},
		{"toolsText", p.ToolsText},
		{"outcome", p.Outcome},
	} {
		if err := d.fill(fmt.Sprintf(`%s input[data-field="%s"]`, card, f.field), f.value); err != nil {
			return err
		}
	}

	bullet, err := d.page.Value(browser.Query(card + ` textarea[data-field="bullet"]`))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(bullet)) <= MinBulletLength {
		return d.fail(fmt.Sprintf("generated bullet longer than %d characters", MinBulletLength), bullet)
	}
	return nil
}

func fillTechnicalSkills(d *Driver) error {
	c := d.candidate
	for _, chip := range c.SkillChips {
		if err := d.page.ClickButton(chip); err != nil {
			return err
		}
	}
	if err := d.enterTag(browser.Query("#customSkillInput"), c.CustomSkill); err != nil {
		return err
	}

	want := len(c.SkillChips) + 1
	n, err := d.page.Count("#selectedSkillsList .tag")
	if err != nil {
		return err
	}
	if n < want {
		return d.fail(fmt.Sprintf("at least %d selected skills", want), strconv.Itoa(n))
	}
	return nil
}

func fillLanguages(d *Driver) error {
	if err := d.page.Click(browser.Query("#addLanguageBtn")); err != nil {
		return err
	}
	l := d.candidate.Language
	if err := d.page.Fill(browser.Query(`#languagesContainer .entry-card input[data-field="language"]`).Last(), l.Name); err != nil {
		return err
	}
	return d.page.Select(browser.Query(`#languagesContainer .entry-card select[data-field="level"]`).Last(), l.Level)
}

func fillSoftSkills(d *Driver) error {
	c := d.candidate
	for _, chip := range c.SoftSkillChips {
		if err := d.page.ClickButton(chip); err != nil {
			return err
		}
	}
	if err := d.fill("#customSoftSkill", c.CustomSoftSkill); err != nil {
		return err
	}

	counter, err := d.page.Text(browser.Query("#softCounter"))
	if err != nil {
		return err
	}
	want := fmt.Sprintf("%d/%d selected", len(c.SoftSkillChips), SoftSkillLimit)
	if !strings.Contains(counter, want) {
		return d.fail(fmt.Sprintf("counter %q", want), counter)
	}
	return nil
}

// verifyPreview checks the rendered CV preview echoes the entered data.
func verifyPreview(d *Driver) error {
	html, err := d.page.HTML(browser.Query("#cvPreview"))
	if err != nil {
		return err
	}
	text, err := PreviewText(html)
	if err != nil {
		return err
	}
	for _, want := range []string{d.candidate.FullName, d.unitID, d.candidate.Specialisation} {
		if want == "" || !strings.Contains(text, want) {
			return d.fail(fmt.Sprintf("preview containing %q", want), text)
		}
	}
	return nil
}

// PreviewText extracts the text of rendered preview markup. Text nodes are joined with a
// space, so adjacent elements never run together, and whitespace is collapsed.
func PreviewText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse preview: %w", err)
	}

	var words []string
	collectWords(doc.Find("body"), &words)
	return strings.Join(words, " "), nil
}

// collectWords appends the words of every text node under sel in document order.
func collectWords(sel *goquery.Selection, words *[]string) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			*words = append(*words, strings.Fields(node.Text())...)
			return
		}
		collectWords(node, words)
	})
}
