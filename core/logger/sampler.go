package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// defaultSample keeps one debug event out of fifty for chatty paths.
var defaultSample = sampleRate{keep: 1, every: 50}

// sampleRate keeps `keep` events out of every `every`. The zero value keeps all.
type sampleRate struct {
	keep, every int
}

// parseSampleRate accepts "1/50", "50" (one of fifty), or "off"/"0" to disable
// sampling. Anything unparsable falls back to the default rate.
func parseSampleRate(raw string) sampleRate {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return defaultSample
	case "off", "0", "all":
		return sampleRate{}
	}
	num, den := raw, ""
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		num, den = raw[:i], raw[i+1:]
	}
	if den == "" {
		every, err := strconv.Atoi(num)
		if err != nil || every <= 0 {
			return defaultSample
		}
		return sampleRate{keep: 1, every: every}
	}
	keep, err1 := strconv.Atoi(strings.TrimSpace(num))
	every, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || keep <= 0 || every <= 0 {
		return defaultSample
	}
	return sampleRate{keep: min(keep, every), every: every}
}

type debugSampler struct {
	rate atomic.Pointer[sampleRate]
	seen atomic.Uint64
}

func newDebugSampler(r sampleRate) *debugSampler {
	s := &debugSampler{}
	s.set(r)
	return s
}

func (s *debugSampler) set(r sampleRate) {
	s.rate.Store(&r)
	s.seen.Store(0)
}

func (s *debugSampler) allow() bool {
	r := s.rate.Load()
	if r == nil || r.every <= 0 {
		return true
	}
	n := s.seen.Add(1) - 1
	return n%uint64(r.every) < uint64(r.keep)
}
