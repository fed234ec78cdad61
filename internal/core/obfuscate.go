package core

import "math/rand"

const (
	// obfuscationMinLen is the request size below which decoys are added. A
	// request for very few codepoints reveals likely page content to the
	// service; padding disguises it.
	obfuscationMinLen = 20
	// obfuscationRange is the window around each real codepoint from which
	// decoys are drawn.
	obfuscationRange = 256
)

// obfuscate grows codes toward obfuscationMinLen with decoy codepoints drawn
// uniformly within ±obfuscationRange/2 of the real codes, cycling through
// them. Candidates below zero, outside loadable, or already requested are
// rejected. Attempts are bounded so the loop terminates even when few decoys
// exist in range. The returned order carries no guarantee; callers sort
// before chunking.
func obfuscate(codes []rune, alreadyRequested map[rune]bool, loadable CodepointSet, rng *rand.Rand) []rune {
	if len(codes) == 0 || len(codes) >= obfuscationMinLen {
		return codes
	}

	taken := make(map[rune]bool, len(alreadyRequested)+len(codes))
	for code := range alreadyRequested {
		taken[code] = true
	}
	for _, code := range codes {
		taken[code] = true
	}

	neededDecoys := obfuscationMinLen - len(codes)
	maxAttempts := 10*neededDecoys + 100
	out := append([]rune(nil), codes...)
	added := 0
	for attempt := 0; attempt < maxAttempts && added < neededDecoys; attempt++ {
		anchor := codes[attempt%len(codes)]
		candidate := anchor - obfuscationRange/2 + rune(rng.Intn(obfuscationRange))
		if candidate < 0 {
			continue
		}
		if !loadable.Contains(candidate) {
			continue
		}
		if taken[candidate] {
			continue
		}
		taken[candidate] = true
		out = append(out, candidate)
		added++
	}
	return out
}
