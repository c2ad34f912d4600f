package scheduling

import "time"

// DefaultServiceMinutes is the average consultation length assumed when
// there is no history.
const DefaultServiceMinutes = 15

// ObservedSampleSize is how many recent consultations feed the refined
// average.
const ObservedSampleSize = 10

// EstimateWait is the expected wait in minutes for a queue position.
func EstimateWait(queueNumber, avgServiceMinutes int) int {
	w := (queueNumber - 1) * avgServiceMinutes
	if w < 0 {
		return 0
	}
	return w
}

// ObservedServiceMinutes is the rounded mean of the given consultation
// durations, or fallback when there are none. Non-positive samples are
// ignored.
func ObservedServiceMinutes(samples []time.Duration, fallback int) int {
	var total time.Duration
	n := 0
	for _, d := range samples {
		if d <= 0 {
			continue
		}
		total += d
		n++
	}
	if n == 0 {
		return fallback
	}
	avg := (total / time.Duration(n)).Round(time.Minute)
	if m := int(avg / time.Minute); m > 0 {
		return m
	}
	return 1
}
