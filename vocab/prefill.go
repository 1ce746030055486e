package vocab

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	clockMu sync.RWMutex
	clock   = time.Now
)

// SetClock replaces the time source used for derived identifiers and
// returns a function restoring the previous one.
func SetClock(now func() time.Time) (restore func()) {
	clockMu.Lock()
	prev := clock
	clock = now
	clockMu.Unlock()
	return func() {
		clockMu.Lock()
		clock = prev
		clockMu.Unlock()
	}
}

func now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock()
}

var audienceKeys = []string{"to", "bto", "cc", "bcc", "audience"}

// prefill copies audience, timing and authorship from the object into the
// unset attributes of a, then derives an id if a still lacks one.
func (a *Activity) prefill() {
	switch obj := a.value("object").(type) {
	case string:
		if a.ID() == "" && obj != "" {
			a.SetID(deriveID(obj, a.Type(), now()))
		}
		return
	case Object:
		oa := obj.attrs()
		for _, k := range audienceKeys {
			a.fill(k, oa.value(k))
		}
		a.fill("published", oa.value("published"))
		a.fill("updated", oa.value("updated"))
		if author := URIOf(oa.value("attributed_to")); author != "" {
			a.fill("actor", author)
		}
		if a.Type() != "Announce" {
			a.fill("in_reply_to", oa.value("in_reply_to"))
		}
		a.fill("interaction_policy", oa.value("interaction_policy"))

		if a.ID() == "" && obj.ID() != "" {
			a.SetID(deriveID(StripFragment(obj.ID()), a.Type(), objectTime(oa)))
		}
	}
}

func (a *Activity) fill(k string, v any) {
	if v == nil || a.Has(k) {
		return
	}
	a.put(k, v)
}

// objectTime prefers updated, then published, then the clock.
func objectTime(oa *Attrs) time.Time {
	for _, k := range []string{"updated", "published"} {
		s, _ := oa.value(k).(string)
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return now()
}

// deriveID builds "{uri}#activity-{type}-{unix}".
func deriveID(uri, typ string, t time.Time) string {
	return fmt.Sprintf("%s#activity-%s-%d", uri, strings.ToLower(typ), t.Unix())
}
