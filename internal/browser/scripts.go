package browser

import (
	"encoding/json"
	"fmt"
)

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// selectOptionScript picks the option whose value or label equals value and fires the
// events the app listens to. Evaluates to false when no such option exists.
func selectOptionScript(el Element, value string) string {
	return fmt.Sprintf(`(() => {
	const nodes = document.querySelectorAll(%[1]s);
	let i = %[2]d;
	if (i < 0) i += nodes.length;
	const el = nodes[i];
	if (!el || !el.options) return false;
	const want = %[3]s;
	const opt = Array.from(el.options).find((o) => o.value === want || o.label === want || o.textContent.trim() === want);
	if (!opt) return false;
	el.value = opt.value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, jsString(el.Selector), el.Index, jsString(value))
}

// clickButtonScript clicks the first rendered button whose text contains name, ignoring
// case, and evaluates to whether one was clicked. Buttons inside hidden sections have no
// client rects and are skipped.
func clickButtonScript(name string) string {
	return fmt.Sprintf(`(() => {
	const want = %s.toLowerCase();
	const visible = (el) => {
		if (el.disabled || el.getClientRects().length === 0) return false;
		return getComputedStyle(el).visibility !== 'hidden';
	};
	const btn = Array.from(document.querySelectorAll('button')).find((el) =>
		el.textContent.replace(/\s+/g, ' ').trim().toLowerCase().includes(want) && visible(el));
	if (!btn) return false;
	btn.click();
	return true;
})()`, jsString(name))
}
