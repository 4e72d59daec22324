package guard

import "unicode"

// Spam heuristics. These target keyboard-mashing and copy-paste flooding;
// false positives are acceptable. Go's regexp has no backreferences, so the
// repetition checks are plain scans.

// IsSpam reports whether content matches any of the spam patterns:
// a single character repeated 11+ times in a row, a short fragment repeated
// 6+ times forming the whole string, 20+ consecutive uppercase letters, or
// a fragment of up to 3 characters repeated 11+ times anywhere.
func IsSpam(content string) bool {
	runes := []rune(content)
	return hasCharRun(runes, 11) ||
		isWholeStringRepeat(runes, 10, 6) ||
		hasUppercaseRun(runes, 20) ||
		hasRepeatedFragment(runes, 3, 11)
}

// hasCharRun reports a run of n identical runes.
func hasCharRun(runes []rune, n int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// isWholeStringRepeat reports whether the entire string is a fragment of at
// most maxFrag runes repeated at least minReps times.
func isWholeStringRepeat(runes []rune, maxFrag, minReps int) bool {
	n := len(runes)
	for fragLen := 1; fragLen <= maxFrag; fragLen++ {
		if n%fragLen != 0 || n/fragLen < minReps {
			continue
		}
		match := true
		for i := fragLen; i < n && match; i++ {
			if runes[i] != runes[i%fragLen] {
				match = false
			}
		}
		if match {
			return true
		}
	}
	return false
}

// hasUppercaseRun reports n consecutive uppercase letters.
func hasUppercaseRun(runes []rune, n int) bool {
	run := 0
	for _, r := range runes {
		if unicode.IsUpper(r) {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// hasRepeatedFragment reports a fragment of 1..maxFrag runes repeated at
// least minReps times consecutively anywhere in the string.
func hasRepeatedFragment(runes []rune, maxFrag, minReps int) bool {
	n := len(runes)
	for fragLen := 1; fragLen <= maxFrag; fragLen++ {
		need := fragLen * minReps
		if need > n {
			break
		}
		for start := 0; start+need <= n; start++ {
			reps := 1
			for off := start + fragLen; off+fragLen <= n; off += fragLen {
				same := true
				for k := 0; k < fragLen; k++ {
					if runes[off+k] != runes[start+k] {
						same = false
						break
					}
				}
				if !same {
					break
				}
				reps++
				if reps >= minReps {
					return true
				}
			}
		}
	}
	return false
}
