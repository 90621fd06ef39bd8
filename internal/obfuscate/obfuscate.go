// Package obfuscate implements completion obfuscation: perturb HTML/JS
// completions before they are handed to miners, so a miner cannot
// trivially fingerprint which upstream model produced a given completion.
// The pipeline has no minification step; the markup is only perturbed.
// There is no HTML-manipulation library in this module's dependency set
// (see DESIGN.md), so the tag-level transforms here work directly against
// regular expressions instead.
package obfuscate

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dojonet/subnet/internal/metricset"
)

// DefaultTimeout is the wall-clock budget after which Obfuscate gives up and
// returns the input unchanged.
const DefaultTimeout = 30 * time.Second

const randomStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
const randomStringAlphanumeric = randomStringAlphabet + "0123456789"

var tagRe = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)((?:\s+[a-zA-Z_:][-a-zA-Z0-9_:.]*(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+))?)*)\s*(/?)>`)
var attrRe = regexp.MustCompile(`([a-zA-Z_:][-a-zA-Z0-9_:.]*)(\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+))?`)
var bodyCloseRe = regexp.MustCompile(`(?i)</body>`)
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Obfuscator applies the obfuscation techniques with its own RNG, so tests
// and the simulator can get reproducible output from a fixed seed.
type Obfuscator struct {
	rng     *rand.Rand
	timeout time.Duration
}

// New constructs an Obfuscator. seed == 0 seeds from the current time.
func New(seed int64, timeout time.Duration) *Obfuscator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Obfuscator{rng: rand.New(rand.NewSource(seed)), timeout: timeout}
}

// Obfuscate runs the perturbation pipeline (random attributes, hidden decoy
// divs, attribute shuffling, optional comment banners; no minification)
// against htmlContent, falling
// back to the unmodified input if it exceeds o.timeout or any stage panics
// recoverably — obfuscation is best-effort and must never break task
// delivery.
func (o *Obfuscator) Obfuscate(ctx context.Context, htmlContent string) string {
	done := make(chan string, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("obfuscate: panic during obfuscation, returning input unchanged", "err", r)
				done <- htmlContent
			}
		}()
		done <- o.run(htmlContent)
	}()

	select {
	case out := <-done:
		return out
	case <-time.After(o.timeout):
		metricset.ObfuscationTimeouts.Inc(1)
		log.Warn("obfuscate: timed out, returning input unchanged", "timeout", o.timeout)
		return htmlContent
	case <-ctx.Done():
		return htmlContent
	}
}

func (o *Obfuscator) run(content string) string {
	out := content

	techniques := []func(string) string{
		o.addRandomAttributes,
		o.addDummyElements,
		o.shuffleAttributes,
	}
	n := 1 + o.rng.Intn(len(techniques))
	chosen := o.sampleFuncs(techniques, n)
	for _, t := range chosen {
		out = t(out)
	}

	if o.rng.Float64() < 0.5 {
		out = o.addEnclosingComments(out)
	}
	return out
}

func (o *Obfuscator) sampleFuncs(fns []func(string) string, n int) []func(string) string {
	idx := o.rng.Perm(len(fns))[:n]
	out := make([]func(string) string, n)
	for i, j := range idx {
		out[i] = fns[j]
	}
	return out
}

func (o *Obfuscator) generateRandomString(length int) string {
	if length < 1 {
		length = 1
	}
	b := make([]byte, length)
	b[0] = randomStringAlphabet[o.rng.Intn(len(randomStringAlphabet))]
	for i := 1; i < length; i++ {
		b[i] = randomStringAlphanumeric[o.rng.Intn(len(randomStringAlphanumeric))]
	}
	return string(b)
}

func (o *Obfuscator) addEnclosingComments(content string) string {
	return "<!-- " + o.generateRandomString(16) + " -->\n" + content + "\n<!-- " + o.generateRandomString(16) + " -->"
}

// addRandomAttributes injects one bogus attribute onto ~30% of tags.
func (o *Obfuscator) addRandomAttributes(content string) string {
	return tagRe.ReplaceAllStringFunc(content, func(tag string) string {
		if o.rng.Float64() >= 0.3 {
			return tag
		}
		m := tagRe.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}
		attr := " " + o.generateRandomString(5) + `="` + o.generateRandomString(8) + `"`
		return insertAttr(tag, m, attr)
	})
}

// addDummyElements appends 1-5 hidden <div> decoys before </body>, or at the
// end of content if there is no body tag.
func (o *Obfuscator) addDummyElements(content string) string {
	n := 1 + o.rng.Intn(5)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(`<div style="display:none;">`)
		b.WriteString(o.generateRandomString(20))
		b.WriteString(`</div>`)
	}
	decoys := b.String()
	if bodyCloseRe.MatchString(content) {
		return bodyCloseRe.ReplaceAllString(content, decoys+"</body>")
	}
	return content + decoys
}

// shuffleAttributes reorders each tag's attribute list in place, matching
// the original's per-tag random.sample shuffle.
func (o *Obfuscator) shuffleAttributes(content string) string {
	return tagRe.ReplaceAllStringFunc(content, func(tag string) string {
		m := tagRe.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}
		attrMatches := attrRe.FindAllString(strings.TrimSpace(m[2]), -1)
		if len(attrMatches) < 2 {
			return tag
		}
		perm := o.rng.Perm(len(attrMatches))
		shuffled := make([]string, len(attrMatches))
		for i, p := range perm {
			shuffled[i] = attrMatches[p]
		}
		self := ""
		if m[3] == "/" || voidTags[strings.ToLower(m[1])] {
			self = " /"
		}
		return "<" + m[1] + " " + strings.Join(shuffled, " ") + self + ">"
	})
}

func insertAttr(tag string, m []string, attr string) string {
	self := ""
	if m[3] == "/" || voidTags[strings.ToLower(m[1])] {
		self = " /"
	}
	return "<" + m[1] + m[2] + attr + self + ">"
}
