package common

import "testing"

func TestStatsHitRateNoAccesses(t *testing.T) {
	s := Stats{}
	if got := s.HitRate(); got != 0 {
		t.Fatalf("HitRate() with no accesses = %v, want 0", got)
	}
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{CacheHits: 3, CacheMisses: 1}
	if got := s.HitRate(); got != 0.75 {
		t.Fatalf("HitRate() = %v, want 0.75", got)
	}
}

func TestRealClockAdvances(t *testing.T) {
	c := RealClock{}
	t1 := c.Now()
	t2 := c.Now()
	if t2.Before(t1) {
		t.Fatal("RealClock.Now() should be monotonically non-decreasing")
	}
}
